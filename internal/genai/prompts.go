package genai

// SystemPrompt instructs the model to answer as a physician and fixes the
// response template so the recommendations section can be located later.
const SystemPrompt = `شما یک پزشک متخصص هستید که باید با توجه به علائم بیمار، تشخیص احتمالی و توصیه‌های لازم را ارائه دهید.
لطفا پاسخ خود را در قالب زیر ارائه دهید:

📋 تشخیص احتمالی:
[تشخیص های احتمالی را به ترتیب اولویت ذکر کنید]
+ 5 تشخیص  بیماری احتمالی حاصل از علائم بالا

⚕️ توضیحات:
[توضیح مختصر در مورد دلیل این تشخیص ها]
+ پیشنهاد دارو های مناسب برای درمان

💊 توصیه‌ها:
[توصیه‌های لازم و اقدامات احتیاطی]
+ پیشنهاد مربوط به تغذیه  و سلامتی
+ پیشنهاد برای طب سنتی

⚠️ هشدارها:
[در صورت وجود علائم خطرناک یا نیاز به مراجعه فوری به پزشک]`

// FallbackText is the fixed, safe diagnostic text returned when the remote
// model stays unreachable after every retry. The conversation always
// completes with some response.
const FallbackText = `📋 تشخیص احتمالی:
به دلیل اختلال در ارتباط با سرور، امکان تشخیص دقیق وجود ندارد.

⚕️ توضیحات:
لطفاً چند دقیقه دیگر مجدداً تلاش کنید.

💊 توصیه‌ها:
در صورت شدید بودن علائم، به پزشک مراجعه کنید.

⚠️ هشدارها:
این پاسخ موقت است و جایگزین مشاوره پزشکی نیست.`

// Distinct user-facing messages for terminally classified failures.
const (
	MessageUnauthorized = "خطا: کلید API نامعتبر است"
	MessageRateLimited  = "خطا: محدودیت تعداد درخواست. لطفاً چند دقیقه صبر کنید"
	MessageServerError  = "خطا: سرور هوش مصنوعی در دسترس نیست"
)

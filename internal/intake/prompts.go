package intake

// Button labels. Incoming text is matched against these exactly, so they
// must stay byte-identical to what SendChoices renders.
const (
	BtnViewProfile  = "👤 مشاهده پروفایل و اطلاعات"
	BtnVisitHistory = "📋 تاریخچه ویزیت‌ها"
	BtnNewVisit     = "🏥 شروع تشخیص و ویزیت جدید"

	BtnYes = "✅"
	BtnNo  = "❌"

	BtnYesWord = "بله"
	BtnNoWord  = "خیر"

	BtnConfirmInfo = "✅ تأیید اطلاعات"
	BtnEditInfo    = "✏️ ویرایش اطلاعات"

	BtnConsentYes = "بله، اطلاعات ارسال شود"
	BtnConsentNo  = "خیر، فرآیند متوقف شود"

	BtnBackToMenu       = "🔙 بازگشت به منوی اصلی"
	BtnBackToVisits     = "🔙 بازگشت به لیست ویزیت‌ها"
	BtnDiagnosisView    = "نسخه تشخیص"
	BtnPrescriptionView = "نسخه تجویز"
	BtnDiagnosisDetail  = "📋 مشاهده جزئیات تشخیص"
	BtnRecommendations  = "💊 مشاهده توصیه‌های درمانی"
)

// mainMenu is the ordered set of start-state choices.
var mainMenu = []string{BtnViewProfile, BtnVisitHistory, BtnNewVisit}

// User-facing messages.
const (
	msgWelcome = "سلام! 👋\n\n" +
		"به سیستم هوشمند تشخیص بیماری خوش آمدید.\n" +
		"لطفاً یکی از گزینه‌های زیر را انتخاب کنید:"

	msgChooseMenuOption = "لطفاً یکی از گزینه‌های موجود را انتخاب کنید."

	msgAskName = "لطفاً نام و نام خانوادگی خود را وارد کنید:"
	msgAskAge  = "لطفاً سن خود را وارد کنید (عدد):"

	// Out-of-range and non-numeric age are distinguishable failures.
	msgAgeOutOfRange = "لطفاً سن معتبر وارد کنید (بین 0 تا 120):"
	msgAgeNotNumber  = "لطفاً فقط عدد وارد کنید:"

	msgAskGender     = "لطفاً جنسیت خود را انتخاب کنید:"
	msgInvalidGender = "لطفاً جنسیت را از بین گزینه‌های موجود انتخاب کنید:"

	msgSectionGuide = "⚕️ راهنمای پاسخ‌دهی:\n" +
		"✅ = بله، علائمی در این بخش دارم\n" +
		"❌ = خیر، علائمی در این بخش ندارم\n\n" +
		"لطفاً مشخص کنید در کدام بخش‌های بدن علائم دارید:"

	msgUseYesNoButtons = "لطفاً از دکمه‌های ✅ یا ❌ استفاده کنید."

	msgSectionsComplete = "✅ تمام بخش‌ها بررسی شدند.\n\n"

	msgAskExtraInfo     = "لطفاً هرگونه توضیحات اضافی یا علائم دیگری که فکر می‌کنید مهم است را بنویسید:"
	msgReenterExtraInfo = "لطفاً مجدداً توضیحات اضافی یا علائم دیگر را وارد کنید:"

	msgAskMedicalHistory = "آیا مایل به تکمیل سوابق پزشکی هستید؟"
	msgChooseYesNoWords  = "لطفاً یکی از گزینه‌های بله یا خیر را انتخاب کنید."

	msgHistoryAnswerGuide = "لطفا جمله را به صورت کامل و واضح بنویسید.\n" +
		"مثال: دمای بدن من 36 است.\n" +
		"مثال: داروی مصرفی من استامینافن است.\n" +
		"مثال: آلرژی و حساسیت به انگور دارم.\n\n" +
		"اگر اطلاعاتی ندارید، می‌توانید 'ندارم' یا '-' وارد کنید."

	msgConsentFooter = "🔒 اطلاعات شما به صورت محرمانه نگهداری می‌شود.\n\n" +
		"آیا مایل هستید اطلاعات شما برای دریافت تشخیص به سیستم هوشمند ارسال شود؟"

	msgConsentDenied = "فرآیند تشخیص متوقف شد.\n" +
		"هر زمان که تمایل داشتید می‌توانید با /start مجدداً شروع کنید."

	msgProcessing = "🔄 در حال تحلیل اطلاعات...\n" +
		"لطفاً صبور باشید. این فرآیند ممکن است چند دقیقه طول بکشد."

	msgDiagnosisFooter = "⚠️ توجه مهم:\n" +
		"• این نتایج فقط جنبه راهنمایی دارند\n" +
		"• برای تشخیص قطعی حتماً به پزشک مراجعه کنید\n" +
		"• در صورت وجود علائم حاد یا اورژانسی، سریعاً به مراکز درمانی مراجعه نمایید"

	msgDiagnosisFailed = "⚠️ متأسفانه در پردازش اطلاعات خطایی رخ داد.\n" +
		"لطفاً چند دقیقه دیگر مجدداً تلاش کنید."

	msgCancelled = "فرآیند لغو شد. برای شروع مجدد /start را بزنید."

	msgInvalidVisitLink = "❌ خطا در دسترسی به اطلاعات ویزیت.\n" +
		"لطفاً از صحت لینک اطمینان حاصل کنید."

	msgNoVisitHistory  = "تاریخچه ویزیتی یافت نشد."
	msgNoProfile       = "❌ اطلاعات پروفایل ثبت نشده است."
	msgInvalidVisit    = "ویزیت نامعتبر است."
	msgVisitNotFound   = "ویزیت مورد نظر یافت نشد."
	msgChooseVisit     = "📋 تاریخچه ویزیت‌های شما:\nلطفاً یک ویزیت را انتخاب کنید:"
	msgChooseReport    = "لطفاً نوع گزارش را انتخاب کنید:"
	msgVisitUnselected = "اطلاعات ویزیت در دسترس نیست."
)

package models

import "fmt"

// Customer-facing texts. The restaurant serves Arabic-speaking customers,
// so every string a customer may read lives here.
const (
	DefaultCustomerName   = "عميل"
	DefaultChatLocation   = "غير محدد"
	DefaultManualLocation = "داخل المحل"
	ChatApology           = "عذراً، حصل خطأ. حاول مرة أخرى"
)

var statusTexts = map[OrderStatus]string{
	OrderStatusNew:       "تم استلام طلبك",
	OrderStatusPreparing: "جاري تحضير طلبك",
	OrderStatusReady:     "طلبك جاهز للاستلام! 🎉",
	OrderStatusDelivered: "تم تسليم الطلب",
	OrderStatusCancelled: "تم إلغاء الطلب",
}

var readyHints = map[OrderType]string{
	OrderTypeDineIn:    "يمكنك استلامه من الكاونتر",
	OrderTypeCarPickup: "سنوصله لسيارتك الآن",
	OrderTypeDelivery:  "جاري توصيله إليك",
}

// StatusText returns the public description for a status, or "" when unknown
func StatusText(s OrderStatus) string {
	return statusTexts[s]
}

// ReadyMessage builds the notification text pushed when an order becomes ready
func ReadyMessage(id int64, t OrderType) string {
	return fmt.Sprintf("🎉 تم تجهيز طلبك #%d! %s", id, readyHints[t])
}

// OrderNumberLine is appended to a chat reply once an order was created
func OrderNumberLine(id int64) string {
	return fmt.Sprintf("\n\n📋 رقم طلبك: #%d", id)
}

// API texts
const (
	TextMessageRequired = "الرسالة مطلوبة"
	TextMissingData     = "البيانات ناقصة"
	TextOrderNotFound   = "الطلب غير موجود"
	TextOrderDeleted    = "تم حذف الطلب"
	TextInvalidStatus   = "حالة غير صالحة"
	TextServerName      = "ملك الطابون - Backend"
)

// CleanupMessage reports how many orders a manual wipe removed
func CleanupMessage(n int64) string {
	return fmt.Sprintf("تم مسح %d طلب من قاعدة البيانات", n)
}

// TextServiceError is the error string returned with the chat apology
const TextServiceError = "حدث خطأ في الخدمة"

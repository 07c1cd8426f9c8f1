package apperr

import "strings"

// user-facing texts; vi is the default locale.
var messages = map[string]map[Kind]string{
	"vi": {
		KindInternal:         "Đã xảy ra lỗi, vui lòng thử lại sau.",
		KindValidation:       "Dữ liệu không hợp lệ.",
		KindNotFound:         "Không tìm thấy dữ liệu yêu cầu.",
		KindConflict:         "Yêu cầu xung đột với trạng thái hiện tại (hết chỗ hoặc đã tồn tại).",
		KindSignature:        "Chữ ký không hợp lệ.",
		KindExternalGateway:  "Cổng thanh toán từ chối giao dịch.",
		KindTransactionAbort: "Giao dịch bị hủy, vui lòng thử lại.",
	},
	"en": {
		KindInternal:         "Something went wrong, please try again later.",
		KindValidation:       "Invalid input.",
		KindNotFound:         "The requested resource was not found.",
		KindConflict:         "The request conflicts with the current state (sold out or already exists).",
		KindSignature:        "Invalid signature.",
		KindExternalGateway:  "The payment gateway rejected the transaction.",
		KindTransactionAbort: "The transaction was aborted, please retry.",
	},
}

// UserMessage picks a localized message for kind from an Accept-Language value.
func UserMessage(kind Kind, acceptLanguage string) string {
	lang := "vi"
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(acceptLanguage)), "en") {
		lang = "en"
	}
	if m, ok := messages[lang][kind]; ok {
		return m
	}
	return messages[lang][KindInternal]
}

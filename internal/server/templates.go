package server

import (
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.New("pages").ParseFS(templateFS, "templates/*.html"))

type pageText struct {
	CheckoutTitle   string
	CheckoutMessage string
	SuccessTitle    string
	SuccessMessage  string
	Continue        string
}

var pageTexts = map[string]pageText{
	"en": {
		CheckoutTitle:   "Secure payment",
		CheckoutMessage: "Redirecting you to the secure payment page…",
		SuccessTitle:    "Payment received",
		SuccessMessage:  "Thank you. Your payment has been received.",
		Continue:        "Continue",
	},
	"ar": {
		CheckoutTitle:   "الدفع الآمن",
		CheckoutMessage: "جارٍ تحويلك إلى صفحة الدفع الآمنة…",
		SuccessTitle:    "تم استلام الدفع",
		SuccessMessage:  "شكراً لك. تم استلام دفعتك بنجاح.",
		Continue:        "متابعة",
	},
}

func pageLang(raw string) (lang, dir string, text pageText) {
	lang = strings.ToLower(strings.TrimSpace(raw))
	if _, ok := pageTexts[lang]; !ok {
		lang = "en"
	}
	dir = "ltr"
	if lang == "ar" {
		dir = "rtl"
	}
	return lang, dir, pageTexts[lang]
}

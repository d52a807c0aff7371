package server

import (
	"golang.org/x/text/language"
)

type messageKey string

const (
	msgSignInRequired       messageKey = "sign_in_required"
	msgSubscriptionRequired messageKey = "subscription_required"
	msgNoCredits            messageKey = "no_credits"
	msgUnavailable          messageKey = "unavailable"
)

var catalog = map[string]map[messageKey]string{
	"en": {
		msgSignInRequired:       "Sign in to continue.",
		msgSubscriptionRequired: "An active subscription is required to access this content.",
		msgNoCredits:            "You have no free credits left.",
		msgUnavailable:          "We could not verify your access right now. Please try again shortly.",
	},
	"ar": {
		msgSignInRequired:       "يرجى تسجيل الدخول للمتابعة.",
		msgSubscriptionRequired: "يتطلب الوصول إلى هذا المحتوى اشتراكًا فعّالًا.",
		msgNoCredits:            "لم يتبقَّ لديك أي رصيد مجاني.",
		msgUnavailable:          "تعذّر التحقق من صلاحية الوصول حاليًا. يرجى المحاولة بعد قليل.",
	},
}

// Localizer picks a message language from Accept-Language. The first configured locale is
// the fallback.
type Localizer struct {
	matcher language.Matcher
	codes   []string
}

func NewLocalizer(locales []string) *Localizer {
	var (
		tags  []language.Tag
		codes []string
	)
	for _, l := range locales {
		if _, ok := catalog[l]; !ok {
			continue
		}
		tag, err := language.Parse(l)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		codes = append(codes, l)
	}
	if len(tags) == 0 {
		tags, codes = []language.Tag{language.English}, []string{"en"}
	}
	return &Localizer{matcher: language.NewMatcher(tags), codes: codes}
}

// Language returns the configured locale code that best matches an Accept-Language header.
func (l *Localizer) Language(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return l.codes[0]
	}
	_, idx, conf := l.matcher.Match(tags...)
	if conf == language.No {
		return l.codes[0]
	}
	return l.codes[idx]
}

func (l *Localizer) Message(acceptLanguage string, key messageKey) string {
	return catalog[l.Language(acceptLanguage)][key]
}

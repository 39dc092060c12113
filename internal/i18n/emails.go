package i18n

import (
	"html"
	"strconv"
	"strings"
)

type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}

type emailStrings struct {
	VerificationSubject string
	VerificationText    string
	VerificationHTML    string
}

var emailTranslations = map[string]emailStrings{
	"en": {
		VerificationSubject: "Your Team Verification Code",
		VerificationText: "Welcome to the Team, {name}!\n\n" +
			"Your verification code is: {code}\n\n" +
			"This code expires in {minutes} minutes.",
		VerificationHTML: `<div style="font-family: sans-serif; padding: 20px;">` +
			"<h2>Welcome to the Team, {name}!</h2>" +
			"<p>Your verification code is:</p>" +
			`<h1 style="color: #2563eb; letter-spacing: 5px;">{code}</h1>` +
			"<p>This code expires in {minutes} minutes.</p>" +
			"</div>",
	},
	"de": {
		VerificationSubject: "Ihr Team-Verifizierungscode",
		VerificationText: "Willkommen im Team, {name}!\n\n" +
			"Ihr Verifizierungscode lautet: {code}\n\n" +
			"Der Code ist {minutes} Minuten gültig.",
		VerificationHTML: `<div style="font-family: sans-serif; padding: 20px;">` +
			"<h2>Willkommen im Team, {name}!</h2>" +
			"<p>Ihr Verifizierungscode lautet:</p>" +
			`<h1 style="color: #2563eb; letter-spacing: 5px;">{code}</h1>` +
			"<p>Der Code ist {minutes} Minuten gültig.</p>" +
			"</div>",
	},
}

func emailStringsForLocale(locale string) emailStrings {
	if val, ok := emailTranslations[NormalizeLocale(locale)]; ok {
		return val
	}
	return emailTranslations[DefaultLocale]
}

func renderTemplate(tmpl string, values map[string]string) string {
	if tmpl == "" || len(values) == 0 {
		return tmpl
	}

	replacements := make([]string, 0, len(values)*2)
	for key, value := range values {
		replacements = append(replacements, "{"+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(tmpl)
}

// VerificationEmail renders the OTP email sent on registration. The name is
// user input and is escaped in the HTML part.
func VerificationEmail(locale, name, code string, minutes int) EmailContent {
	templates := emailStringsForLocale(locale)
	text := map[string]string{
		"name":    name,
		"code":    code,
		"minutes": strconv.Itoa(minutes),
	}
	markup := map[string]string{
		"name":    html.EscapeString(name),
		"code":    code,
		"minutes": strconv.Itoa(minutes),
	}
	return EmailContent{
		Subject: templates.VerificationSubject,
		Text:    renderTemplate(templates.VerificationText, text),
		HTML:    renderTemplate(templates.VerificationHTML, markup),
	}
}

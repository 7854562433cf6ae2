package notifier

import (
	"fmt"
	"strings"
)

const (
	LangEN   = "en"
	LangZHCN = "zh-CN"

	DefaultLanguage = LangZHCN
)

// Messages are the localized fragments used to build alerts.
type Messages struct {
	ServiceDown      string // takes the monitor name
	ServiceRecovered string // takes the monitor name
	URL              string
	Error            string
	Status           string
	Downtime         string
	Mins             string
}

var catalog = map[string]Messages{
	LangEN: {
		ServiceDown:      "Service Down: %s",
		ServiceRecovered: "Service Recovered: %s",
		URL:              "URL",
		Error:            "Error",
		Status:           "Status",
		Downtime:         "Downtime",
		Mins:             "mins",
	},
	LangZHCN: {
		ServiceDown:      "服务告警: %s",
		ServiceRecovered: "服务恢复: %s",
		URL:              "目标地址",
		Error:            "错误信息",
		Status:           "状态码",
		Downtime:         "故障持续",
		Mins:             "分钟",
	},
}

// Lookup returns the catalog for lang, falling back to DefaultLanguage.
func Lookup(lang string) Messages {
	lang = strings.TrimSpace(lang)
	if m, ok := catalog[lang]; ok {
		return m
	}
	for k, m := range catalog {
		if strings.EqualFold(k, lang) {
			return m
		}
	}
	return catalog[DefaultLanguage]
}

// DownAlert builds the outage alert. errText is the transport error for a
// network failure, or empty when status carries the HTTP code.
func DownAlert(lang, name, url string, status int, errText string) Alert {
	m := Lookup(lang)
	detail := fmt.Sprintf("%s %d", m.Status, status)
	if status == 0 {
		detail = errText
		if detail == "" {
			detail = "Network Error"
		}
	}
	return Alert{
		Title:       fmt.Sprintf(m.ServiceDown, name),
		Description: fmt.Sprintf("**%s:** %s\n**%s:** %s", m.URL, url, m.Error, detail),
		Status:      StatusDown,
	}
}

// UpAlert builds the recovery alert for an outage lasting mins minutes.
func UpAlert(lang, name, url string, mins int64) Alert {
	m := Lookup(lang)
	return Alert{
		Title:       fmt.Sprintf(m.ServiceRecovered, name),
		Description: fmt.Sprintf("**%s:** %s\n**%s:** ~%d %s", m.URL, url, m.Downtime, mins, m.Mins),
		Status:      StatusUp,
	}
}

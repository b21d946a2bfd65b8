package webhook

import "strings"

const (
	TopicAppUninstalled       = "app/uninstalled"
	TopicShopUpdate           = "shop/update"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

// Topics is the fixed subscription list registered for every shop.
var Topics = []string{
	TopicAppUninstalled,
	TopicShopUpdate,
	TopicCustomersDataRequest,
	TopicCustomersRedact,
	TopicShopRedact,
}

// Path is the inbound route for topic, e.g. "/webhook/app/uninstalled".
func Path(topic string) string {
	return "/webhook/" + NormalizeTopic(topic)
}

// NormalizeTopic lower-cases a topic and accepts the header spelling
// ("app/uninstalled"), the underscore spelling ("app_uninstalled") and
// the dotted event-bridge spelling ("app.uninstalled").
func NormalizeTopic(topic string) string {
	t := strings.Trim(strings.ToLower(strings.TrimSpace(topic)), "/")
	if strings.Contains(t, "/") {
		return t
	}
	for _, known := range Topics {
		flat := strings.ReplaceAll(known, "/", "_")
		dotted := strings.ReplaceAll(known, "/", ".")
		if t == flat || t == dotted {
			return known
		}
	}
	return t
}

package policy

import (
	"strings"

	"github.com/Micca1978/scadarange/pkg/types"
)

const wildcard = "any"

// matchRule reports whether a connection tuple falls under rule.
// Source and destination accept "any", an exact value, or a prefix of the
// candidate ("scada" covers "scada-server-1"). Service accepts "any" or an exact value.
func matchRule(rule *types.Rule, source, destination, service string) bool {
	return matchAddress(rule.Source, source) &&
		matchAddress(rule.Destination, destination) &&
		(rule.Service == wildcard || rule.Service == service)
}

func matchAddress(ruleValue, candidate string) bool {
	return ruleValue == wildcard || ruleValue == candidate || strings.HasPrefix(candidate, ruleValue)
}

// coversPortal reports whether a rule's service and destination concern the SCADA portal.
func coversPortal(rule *types.Rule) bool {
	service := strings.ToLower(rule.Service)
	destination := strings.ToLower(rule.Destination)

	serviceHit := service == "http" || service == "https" || service == wildcard ||
		strings.Contains(service, "scada") || strings.Contains(service, "portal")
	destinationHit := destination == wildcard ||
		strings.Contains(destination, "scada") || strings.Contains(destination, "portal")

	return serviceHit && destinationHit
}

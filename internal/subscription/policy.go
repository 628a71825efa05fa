package subscription

import (
	"slices"
	"strings"

	"github.com/kiranshivaraju/errdigest/internal/config"
)

// SenderPolicy decides who may issue subscription commands: anyone when no
// domain is configured, otherwise addresses in that domain or on the white
// list.
type SenderPolicy struct {
	OnlyDomain string
	WhiteList  []string
}

func NewSenderPolicy(cfg config.SubscriptionConfig) SenderPolicy {
	return SenderPolicy{OnlyDomain: cfg.OnlyDomain, WhiteList: cfg.WhiteList}
}

// Allows reports whether sender (a bare address) may issue commands.
func (p SenderPolicy) Allows(sender string) bool {
	if p.OnlyDomain == "" {
		return true
	}
	addr := strings.ToLower(sender)
	if strings.HasSuffix(addr, "@"+strings.ToLower(p.OnlyDomain)) {
		return true
	}
	return slices.ContainsFunc(p.WhiteList, func(w string) bool {
		return strings.EqualFold(w, sender)
	})
}

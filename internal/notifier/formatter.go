package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"YieldKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
)

// FormatCycleReport formats a cycle result into a Telegram HTML message.
func FormatCycleReport(res *model.CycleResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s <b>YieldKeeper</b> | %s\n", outcomeIcon(res.Outcome), res.StartedAt.UTC().Format("2006-01-02 15:04 UTC")))
	b.WriteString(fmt.Sprintf("Cycle: <code>%s</code> (%s)\n", shortID(res), res.Trigger))
	b.WriteString(fmt.Sprintf("Outcome: <b>%s</b>\n", res.Outcome))

	if res.Snapshot.Len() > 0 {
		b.WriteString("\n📈 <b>APYs:</b>\n")
		for _, st := range res.Snapshot.Strategies {
			marker := "  "
			if res.Strategy != nil && res.Strategy.Name == st.Name {
				marker = "→ "
			}
			b.WriteString(fmt.Sprintf("%s%s: %s%%\n", marker, html.EscapeString(st.Name), st.APY.StringFixed(2)))
		}
	}

	if res.Vault != nil {
		b.WriteString(fmt.Sprintf("\n🏦 Vault: %s USDC.e / %s shares\n",
			res.Vault.TotalAssets.StringFixed(2), res.Vault.TotalSupply.StringFixed(2)))
	}

	if res.Strategy != nil {
		b.WriteString(fmt.Sprintf("\n🎯 <b>Chosen:</b> %s (%s)\n", html.EscapeString(res.Strategy.Name), res.Source))
		if res.Source == model.SourceAdvisory && res.AdvisoryReason != "" {
			b.WriteString(fmt.Sprintf("   Reason: %s\n", html.EscapeString(res.AdvisoryReason)))
		}
	}
	if res.AdvisoryError != "" {
		b.WriteString(fmt.Sprintf("⚠️ Advisory: %s\n", html.EscapeString(res.AdvisoryError)))
	}
	if res.TxHash != (common.Hash{}) {
		b.WriteString(fmt.Sprintf("🔗 Tx: <code>%s</code>\n", res.TxHash.Hex()))
	}
	if res.Failure != "" {
		b.WriteString(fmt.Sprintf("\n❌ %s\n", html.EscapeString(res.Failure)))
	}
	if d := res.Duration(); d > 0 {
		b.WriteString(fmt.Sprintf("\nTook %s\n", d.Round(time.Millisecond)))
	}
	return b.String()
}

// FormatStrategies lists the configured strategy set.
func FormatStrategies(strategies []model.Strategy) string {
	if len(strategies) == 0 {
		return "⚠️ No strategies configured"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Strategies (%d)</b>\n\n", len(strategies)))
	for i, st := range strategies {
		b.WriteString(fmt.Sprintf("%d. %s\n   <code>%s</code>\n", i+1, html.EscapeString(st.Name), st.Address.Hex()))
	}
	return b.String()
}

// FormatHelp lists the operator commands.
func FormatHelp() string {
	return "Available commands:\n• /run  trigger a cycle now\n• /status  last cycle result\n• /strategies  configured strategies"
}

func outcomeIcon(o model.Outcome) string {
	switch o {
	case model.OutcomeExecuted:
		return "✅"
	case model.OutcomeBusy, model.OutcomeCancelled:
		return "⏸"
	default:
		return "❌"
	}
}

func shortID(res *model.CycleResult) string {
	s := res.ID.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

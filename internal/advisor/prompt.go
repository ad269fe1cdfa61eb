package advisor

import (
	"strconv"
	"strings"

	"YieldKeeper/internal/advisory"
)

const promptHeader = `You are a seasoned DeFi strategist. Recommend the single best USDC.e yield strategy on the XDC Network, given current APYs and additional considerations.

Context:
- Token: USDC.e (wrapped USDC on XDC mainnet).
- Goal: maximize safe yield while keeping liquidity and minimizing risk.
- Risk profile: moderate. Prefer strategies with reliable track records over experimental high-APY pools.
- Constraints: funds must stay easily withdrawable. Avoid locked or vesting-only protocols.

Available strategies and their on-chain APYs:
`

const promptFooter = `
Tasks:
1. Select the best strategy name, spelled exactly as listed above.
2. Explain your reasoning: how the APY compares, liquidity and counterparty risk, ease of withdrawal.
3. Output ONLY valid JSON with exactly these keys:
{"strategy": "<name>", "reason": "<explanation>"}
`

// BuildPrompt renders the moderate-risk selection prompt for a strategy list.
func BuildPrompt(strategies []advisory.StrategyQuote) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, st := range strategies {
		b.WriteString("- ")
		b.WriteString(st.Name)
		b.WriteString(": ")
		b.WriteString(strconv.FormatFloat(st.APY, 'f', -1, 64))
		b.WriteString("% APY\n")
	}
	b.WriteString(promptFooter)
	return b.String()
}

// ExtractJSON returns the text between the first '{' and the last '}'.
// Models often wrap their answer in prose or code fences.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

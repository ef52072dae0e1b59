package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

const (
	matchConfidence   = 0.9
	unknownConfidence = 0.5

	labelChangePIN = "change_pin"
)

type keywordRule struct {
	label    string
	keywords []string
}

// Rules are checked in order; the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{label: string(dialogue.CheckBalance), keywords: []string{"balance", "check balance", "how much", "account balance"}},
	{label: string(dialogue.TransferMoney), keywords: []string{"transfer", "send money", "send", "pay someone"}},
	{label: string(dialogue.PayBill), keywords: []string{"pay bill", "bill payment", "utility", "electricity", "water"}},
	{label: string(dialogue.MiniStatement), keywords: []string{"statement", "transactions", "history", "recent"}},
	{label: labelChangePIN, keywords: []string{"change pin", "update pin", "new pin"}},
	{label: string(dialogue.Help), keywords: []string{"help", "what can you do", "commands"}},
}

var (
	amountPattern = regexp.MustCompile(`\d+(?:\.\d{1,2})?`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\- ]{5,}\d`)
	billTypes     = []string{"electricity", "water", "gas", "internet", "phone", "mobile"}
)

// KeywordClassifier is the rule-table classifier. It never fails.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the rule-table classifier.
func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{}
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(_ context.Context, text string) (Result, error) {
	return MatchKeywords(text), nil
}

// MatchKeywords classifies text with the rule table.
func MatchKeywords(text string) Result {
	lowered := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return newResult(rule.label, matchConfidence, extractEntities(rule.label, lowered))
			}
		}
	}
	return newResult(string(dialogue.Unknown), unknownConfidence, nil)
}

// extractEntities pulls slot hints out of the utterance. They are
// informational; the dialogue still asks for every slot.
func extractEntities(label, lowered string) map[string]string {
	entities := map[string]string{}
	switch dialogue.Intent(label) {
	case dialogue.TransferMoney:
		phone := phonePattern.FindString(lowered)
		if phone != "" {
			entities[dialogue.SlotPhone] = strings.NewReplacer(" ", "", "-", "").Replace(phone)
		}
		rest := strings.Replace(lowered, phone, " ", 1)
		if amount := amountPattern.FindString(rest); amount != "" {
			entities[dialogue.SlotAmount] = amount
		}
	case dialogue.PayBill:
		for _, bt := range billTypes {
			if strings.Contains(lowered, bt) {
				entities[dialogue.SlotBillType] = bt
				break
			}
		}
		if amount := amountPattern.FindString(lowered); amount != "" {
			entities[dialogue.SlotAmount] = amount
		}
	case dialogue.CheckBalance, dialogue.MiniStatement, dialogue.Help, dialogue.Unknown:
	}
	return entities
}

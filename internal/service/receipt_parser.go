package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/clearance-api/internal/models"
)

// ParseStage names the step of the recovery chain that produced a result.
type ParseStage string

const (
	StageStrict   ParseStage = "strict"
	StageRepaired ParseStage = "repaired"
	StageManual   ParseStage = "manual"
	StageFailed   ParseStage = "failed"
)

var (
	manualAmount     = regexp.MustCompile(`"amount":\s*"?([^",}]+)"?`)
	manualReference  = regexp.MustCompile(`"reference_number":\s*"?([^",}]+)"?`)
	manualRawText    = regexp.MustCompile(`"raw_text":\s*"([^"]*)`)
	manualConfidence = regexp.MustCompile(`"confidence_score":\s*"?([^",}]+)"?`)
	nonAmountChars   = regexp.MustCompile(`[^\d.]`)

	// Ordered by specificity; the first pattern with any match wins.
	rawTextReferencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:REF|REFERENCE|NO\.|NUMBER)[\s#:]*(\d{7,16})`),
		regexp.MustCompile(`(?i)(?:ORIGINAL)[\s\S]*?(\d{7,16})`),
		regexp.MustCompile(`(?i)(?:RECEIPT|TXN|TRANSACTION)[\s#:]*(\d{7,16})`),
		regexp.MustCompile(`\b(\d{7,16})\b`),
	}
)

// receiptFields holds the four model fields as text before interpretation.
type receiptFields struct {
	Amount     string
	Reference  string
	RawText    string
	Confidence string
}

// ParseReceiptResponse recovers receipt fields from model output. It tries a strict JSON
// parse, then a structural repair, then regex extraction. It never panics; StageFailed
// means nothing usable was found.
func ParseReceiptResponse(text string) (models.ExtractedReceipt, ParseStage) {
	cleaned := stripCodeFence(text)

	if fields, ok := decodeReceiptJSON(cleaned); ok {
		return interpretReceipt(fields), StageStrict
	}
	if repaired, changed := repairJSON(cleaned); changed {
		if fields, ok := decodeReceiptJSON(repaired); ok {
			return interpretReceipt(fields), StageRepaired
		}
	}
	if fields, ok := manualReceiptFields(cleaned); ok {
		return interpretReceipt(fields), StageManual
	}
	return models.ExtractedReceipt{}, StageFailed
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(t, "```json"):
		t = t[len("```json"):]
	case strings.HasPrefix(t, "```"):
		t = t[len("```"):]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func decodeReceiptJSON(text string) (receiptFields, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return receiptFields{}, false
	}
	return receiptFields{
		Amount:     jsonScalar(obj["amount"]),
		Reference:  jsonScalar(obj["reference_number"]),
		RawText:    jsonScalar(obj["raw_text"]),
		Confidence: jsonScalar(obj["confidence_score"]),
	}, true
}

func jsonScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// repairJSON drops any prose before the first brace, closes an unterminated
// string, drops a dangling comma or colon, and appends the closing brackets
// still open at the end of text.
func repairJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return text, false
	}
	body := text[start:]

	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !inString && len(stack) == 0 {
		return body, start > 0
	}

	var b bytes.Buffer
	b.WriteString(body)
	if escaped {
		b.Truncate(b.Len() - 1)
	}
	if inString {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	case strings.HasSuffix(out, ":"):
		out += "null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out, true
}

func manualReceiptFields(text string) (receiptFields, bool) {
	var fields receiptFields
	found := false
	if m := manualAmount.FindStringSubmatch(text); m != nil {
		fields.Amount, found = m[1], true
	}
	if m := manualReference.FindStringSubmatch(text); m != nil {
		fields.Reference, found = m[1], true
	}
	if m := manualRawText.FindStringSubmatch(text); m != nil {
		fields.RawText, found = m[1], true
	}
	if m := manualConfidence.FindStringSubmatch(text); m != nil {
		fields.Confidence, found = m[1], true
	}
	return fields, found
}

func interpretReceipt(fields receiptFields) models.ExtractedReceipt {
	return models.ExtractedReceipt{
		Amount:          parseAmount(fields.Amount),
		ReferenceNumber: resolveReference(fields.Reference, fields.RawText),
		Confidence:      parseConfidence(fields.Confidence),
		RawText:         fields.RawText,
	}
}

func parseAmount(raw string) *float64 {
	cleaned := nonAmountChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseConfidence(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func resolveReference(modelRef, rawText string) string {
	if digits := digitsOnly(modelRef); len(digits) >= 7 && len(digits) <= 16 {
		return digits
	}
	for _, pattern := range rawTextReferencePatterns {
		if m := pattern.FindStringSubmatch(rawText); m != nil {
			return m[1]
		}
	}
	return ""
}

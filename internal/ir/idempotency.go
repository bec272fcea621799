package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// Field labels for the v2 idempotency key, in composition order.
const (
	keyLabelPlanID         = "plan_id"
	keyLabelCampaignID     = "campaign_id"
	keyLabelEventType      = "event_type"
	keyLabelToolName       = "tool_name"
	keyLabelRulesetVersion = "ruleset_version"
	keyLabelArgsJSON       = "args_json"
)

// IdempotencyInputs are the semantic fields that identify one logical write.
// Transient fields (execution request id, replay ordinal) are deliberately
// absent so retries of the same intent derive the same key.
type IdempotencyInputs struct {
	PlanID         string
	CampaignID     string
	EventType      string
	ToolName       string
	RulesetVersion string
	Args           IRObject // nil contributes an empty string
}

// Key derives the v2 idempotency key for in.
func (in IdempotencyInputs) Key() (IdempotencyKey, error) {
	return IdempotencyKeyV2(in.PlanID, in.CampaignID, in.EventType, in.ToolName, in.RulesetVersion, in.Args)
}

// IdempotencyKeyV2 computes
//
//	SHA256(plan_id || campaign_id || event_type || tool_name ||
//	       ruleset_version || canonical(args))[:16]
//
// where every field is framed as label ++ u32be(len) ++ utf8 bytes. Empty
// strings stand for null fields; nil args contribute an empty string while
// an empty object contributes "{}".
func IdempotencyKeyV2(planID, campaignID, eventType, toolName, rulesetVersion string, args IRObject) (IdempotencyKey, error) {
	var argsJSON []byte
	if args != nil {
		canonical, err := MarshalCanonical(args)
		if err != nil {
			return IdempotencyKey{}, fmt.Errorf("idempotency key: args: %w", err)
		}
		argsJSON = canonical
	}

	h := sha256.New()
	writeLabeled(h, keyLabelPlanID, []byte(planID))
	writeLabeled(h, keyLabelCampaignID, []byte(campaignID))
	writeLabeled(h, keyLabelEventType, []byte(eventType))
	writeLabeled(h, keyLabelToolName, []byte(toolName))
	writeLabeled(h, keyLabelRulesetVersion, []byte(rulesetVersion))
	writeLabeled(h, keyLabelArgsJSON, argsJSON)

	var key IdempotencyKey
	copy(key[:], h.Sum(nil)[:len(key)])
	return key, nil
}

// MustIdempotencyKeyV2 is like IdempotencyKeyV2 but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIdempotencyKeyV2(planID, campaignID, eventType, toolName, rulesetVersion string, args IRObject) IdempotencyKey {
	key, err := IdempotencyKeyV2(planID, campaignID, eventType, toolName, rulesetVersion, args)
	if err != nil {
		panic(err)
	}
	return key
}

func writeLabeled(w io.Writer, label string, value []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(value)))
	w.Write([]byte(label))
	w.Write(n[:])
	w.Write(value)
}

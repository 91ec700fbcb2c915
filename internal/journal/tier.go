package journal

import "github.com/kessa-dev/kessa/internal/model"

// computeConfidenceTier assigns a coarse quality label at resolve
// time: auto-captured confirmations are gold; a confirmation (or a
// falsified entry with a full surprise/root-cause/lesson analysis) is
// silver; a falsified entry missing part of that analysis is bronze;
// abandoned entries are always abandoned, regardless of other fields.
func computeConfidenceTier(e *model.GHAPEntry) model.ConfidenceTier {
	if e.Outcome == nil {
		return model.TierBronze
	}

	switch e.Outcome.Status {
	case model.OutcomeAbandoned:
		return model.TierAbandoned
	case model.OutcomeConfirmed:
		if e.Outcome.AutoCaptured {
			return model.TierGold
		}
		return model.TierSilver
	case model.OutcomeFalsified:
		if hasFullFalsificationAnalysis(e) {
			return model.TierSilver
		}
		return model.TierBronze
	default:
		return model.TierBronze
	}
}

func hasFullFalsificationAnalysis(e *model.GHAPEntry) bool {
	return e.Surprise != "" && e.RootCause != nil && e.Lesson != nil
}

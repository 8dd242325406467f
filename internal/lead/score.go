// internal/lead/score.go
//
// Lead scoring.
//
// Context
// -------
// CalculateLeadScore turns company size and engagement signals into a
// 0-100 priority the CRM sorts on.  Partner applications get a flat bonus.
// The result is clamped to the range.
package lead

// Score weights.  The model is a heuristic, not a trained one.
const (
	scoreBase          = 50
	scoreWebsite       = 10
	scorePhone         = 5
	scoreCampaign      = 10
	scoreEngaged       = 10
	scoreEngagedAfter  = 120 // seconds on site
	scoreBrowsing      = 5
	scoreBrowsingPages = 3
	scorePartnerBonus  = 10
	scoreMin           = 0
	scoreMax           = 100
)

// companySizeBonus maps the declared size band to its bonus.
var companySizeBonus = map[string]int{
	"1-10":     5,
	"11-50":    10,
	"51-200":   15,
	"201-500":  20,
	"501-1000": 25,
	"1000+":    30,
}

// ScoreInput gathers the signals CalculateLeadScore looks at.
type ScoreInput struct {
	CompanySize string
	HasWebsite  bool
	HasPhone    bool
	HasCampaign bool
	TimeOnSite  int
	PageViews   int
}

// CalculateLeadScore returns an integer in [0, 100].
func CalculateLeadScore(in ScoreInput) int {
	return clampScore(rawScore(in))
}

// partnerScore adds the partner bonus before clamping.
func partnerScore(in ScoreInput) int {
	return clampScore(rawScore(in) + scorePartnerBonus)
}

func rawScore(in ScoreInput) int {
	score := scoreBase + companySizeBonus[in.CompanySize]
	if in.HasWebsite {
		score += scoreWebsite
	}
	if in.HasPhone {
		score += scorePhone
	}
	if in.HasCampaign {
		score += scoreCampaign
	}
	if in.TimeOnSite > scoreEngagedAfter {
		score += scoreEngaged
	}
	if in.PageViews >= scoreBrowsingPages {
		score += scoreBrowsing
	}
	return score
}

func clampScore(s int) int {
	switch {
	case s < scoreMin:
		return scoreMin
	case s > scoreMax:
		return scoreMax
	}
	return s
}

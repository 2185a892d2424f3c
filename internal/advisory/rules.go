package advisory

// Primary advisory sentences per IAQ severity tier.
const (
	sentenceEmergency = "Air quality is at emergency levels. Ventilate the room immediately, move sensitive individuals elsewhere, and eliminate any obvious pollution source."
	sentenceVeryBad   = "Air quality is very unhealthy. Keep windows open, run an air purifier if available, and limit time spent in this room."
	sentenceUnhealthy = "Air quality is unhealthy. Increase ventilation and avoid activities that add pollutants indoors."
	sentenceSensitive = "Air quality may affect sensitive individuals. Consider airing the room and monitoring how the values develop."
	sentenceOK        = "Air quality is within an acceptable range. Keep up your current ventilation habits."
)

// Supplementary tips, appended in fixed order and capped at three.
const (
	tipPM25 = "Fine particle levels are high: check for smoke, candles, cooking fumes or outdoor pollution entering the room."
	tipVOC  = "Volatile organic compounds are elevated: ventilate and look for sources such as cleaning agents, fresh paint or new furniture."
	tipCO   = "Carbon monoxide is elevated: check combustion sources such as stoves, heaters and fireplaces, and ventilate now."
)

const maxTips = 3

// Advice is the deterministic output of the local rule engine.
type Advice struct {
	Text string
	Tips []string
}

// Advise selects exactly one primary sentence from the IAQ severity
// tiers and appends up to three supplementary tips based on the
// per-sensor category buckets. Pure function, no I/O.
func Advise(s *Snapshot) Advice {
	var iaq float64
	if s.Latest != nil {
		iaq = s.Latest.PredictedIAQ
	}

	var text string
	switch {
	case iaq >= 300:
		text = sentenceEmergency
	case iaq >= 200:
		text = sentenceVeryBad
	case iaq >= 150:
		text = sentenceUnhealthy
	case iaq >= 100:
		text = sentenceSensitive
	default:
		text = sentenceOK
	}

	var tips []string
	if s.PM25Category == CategoryHigh {
		tips = append(tips, tipPM25)
	}
	if s.VOCCategory != CategoryOK {
		tips = append(tips, tipVOC)
	}
	if s.COCategory != CategoryOK {
		tips = append(tips, tipCO)
	}
	if len(tips) > maxTips {
		tips = tips[:maxTips]
	}

	return Advice{Text: text, Tips: tips}
}

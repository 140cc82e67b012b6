package detect

import "time"

// Level is the severity shown on the alert card.
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Alert is the most severe active detection.
type Alert struct {
	Kind  Kind  `json:"kind,omitempty"`
	Level Level `json:"level"`
}

// Active reports whether any detection is raising the alert card.
func (a Alert) Active() bool { return a.Level != LevelNone }

// Assess maps a snapshot to its alert severity.
func Assess(s Snapshot) Alert {
	kind, ok := Classify(s)
	if !ok {
		return Alert{Level: LevelNone}
	}
	return Alert{Kind: kind, Level: kind.Level()}
}

// Level returns the severity of a detection kind.
func (k Kind) Level() Level {
	switch k {
	case KindGun:
		return LevelCritical
	case KindKnife:
		return LevelHigh
	case KindMultiplePersons:
		return LevelMedium
	case KindPerson:
		return LevelLow
	}
	return LevelNone
}

// Guidance is the fixed advice card shown when narration has nothing to say.
type Guidance struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

var (
	multiplePersonsGuidance = Guidance{
		Title: "Urgent Alert: Multiple Intruders Detected!",
		Steps: []string{
			"Secure All Entry Points: lock doors and windows, and gather household members in a safe room.",
			"Contact Authorities Immediately: report multiple intruders on your property and request priority response.",
			"Avoid Any Confrontation: stay quiet and concealed until authorities arrive.",
			"Provide Details on Entry Points & Movements: share any information on intruders' movements with law enforcement.",
		},
	}
	gunGuidance = Guidance{
		Title: "Critical Alert: Intruder Armed with Gun Detected!",
		Steps: []string{
			"Find Immediate Cover: lock doors, avoid windows, and stay as low as possible.",
			"Dial Emergency Services: report the armed intruder with a gun and provide your location.",
			"Maintain Silence: keep phone notifications silent and await law enforcement.",
			"Continue Monitoring Safely: if possible, provide live feed updates to authorities.",
		},
	}
	knifeGuidance = Guidance{
		Title: "Intruder Armed with Knife Detected!",
		Steps: []string{
			"Stay in a Safe Zone: avoid direct paths and secure yourself behind locked doors.",
			"Call Emergency Services: inform them of an armed intruder with a knife on your property.",
			"Observe from Distance: if safe, watch the intruder's location on the video feed.",
			"Prepare to Provide Details: when authorities arrive, share any information about the intruder's actions and movements.",
		},
	}
	personGuidance = Guidance{
		Title: "Alert: Intruder Detected!",
		Steps: []string{
			"Stay Calm: your system has identified a potential intruder.",
			"Verify Intruder: check the live video feed to confirm the presence of an intruder.",
			"If confirmed: call the police immediately and provide your location.",
			"Monitor: keep the intruder on the feed, but do not engage directly.",
			"Secure: lock all doors and stay in a safe area until authorities arrive.",
		},
	}
)

// GuidanceFor returns the advice card for a snapshot. Multiple persons take
// precedence here, unlike the history classification.
func GuidanceFor(s Snapshot) (Guidance, bool) {
	switch {
	case s.MultiplePersons:
		return multiplePersonsGuidance, true
	case s.Gun:
		return gunGuidance, true
	case s.Knife:
		return knifeGuidance, true
	case s.Person:
		return personGuidance, true
	}
	return Guidance{}, false
}

// AutoDetectionHour is the local hour at which the backend starts detecting
// on its own.
const AutoDetectionHour = 19

// UntilAutoDetection returns the time left before the next automatic
// detection start.
func UntilAutoDetection(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), AutoDetectionHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now).Truncate(time.Second)
}

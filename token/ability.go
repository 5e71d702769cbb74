package token

import "encoding/json"

// Ability is a point on the sphere's authority partial order, spec.md
// §4.7: "Authorize > Publish > Push > Fetch". Higher values grant every
// capability a lower value does, against the same resource and caveat.
type Ability uint8

const (
	AbilityFetch Ability = iota
	AbilityPush
	AbilityPublish
	AbilityAuthorize
)

func (a Ability) String() string {
	switch a {
	case AbilityFetch:
		return "fetch"
	case AbilityPush:
		return "push"
	case AbilityPublish:
		return "publish"
	case AbilityAuthorize:
		return "authorize"
	default:
		return "unknown"
	}
}

func ParseAbility(s string) (Ability, error) {
	switch s {
	case "fetch":
		return AbilityFetch, nil
	case "push":
		return AbilityPush, nil
	case "publish":
		return AbilityPublish, nil
	case "authorize":
		return AbilityAuthorize, nil
	default:
		return 0, ErrUnknownAbility
	}
}

func (a Ability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Ability) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAbility(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

package level

// Title 是达到特定等级后获得的称号。
type Title struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
}

// Perk 是达到特定等级后解锁的能力。
type Perk string

const (
	PerkReview       Perk = "review"
	PerkFeature      Perk = "feature"
	PerkCreatePrompt Perk = "create_prompt"
	PerkExpertBadge  Perk = "expert_badge"
	PerkMentor       Perk = "mentor"
	PerkHonorary     Perk = "honorary_member"
)

// PerkUnlock 描述一个能力从哪个等级开始可用。
type PerkUnlock struct {
	Level int  `json:"level"`
	Perk  Perk `json:"perk"`
}

var titles = []Title{
	{Level: 4, Name: "方言新秀"},
	{Level: 8, Name: "方言达人"},
	{Level: 12, Name: "方言守护者"},
	{Level: 16, Name: "方言传承者"},
	{Level: 20, Name: "方言活化石"},
}

var perks = []PerkUnlock{
	{Level: 3, Perk: PerkReview},
	{Level: 5, Perk: PerkFeature},
	{Level: 8, Perk: PerkCreatePrompt},
	{Level: 12, Perk: PerkExpertBadge},
	{Level: 16, Perk: PerkMentor},
	{Level: 20, Perk: PerkHonorary},
}

// TitleFor 返回该等级已获得的最高称号。4级以下没有称号。
func TitleFor(level int) (Title, bool) {
	var best Title
	found := false
	for _, t := range titles {
		if level >= t.Level {
			best = t
			found = true
		}
	}
	return best, found
}

// Titles 返回所有称号。
func Titles() []Title {
	out := make([]Title, len(titles))
	copy(out, titles)
	return out
}

// PerksFor 返回该等级已解锁的全部能力，按解锁等级排序。
func PerksFor(level int) []Perk {
	var out []Perk
	for _, p := range perks {
		if level >= p.Level {
			out = append(out, p.Perk)
		}
	}
	return out
}

// PerkLevel 返回某个能力的解锁等级。
func PerkLevel(p Perk) (int, bool) {
	for _, u := range perks {
		if u.Perk == p {
			return u.Level, true
		}
	}
	return 0, false
}

// Perks 返回所有能力及其解锁等级。
func Perks() []PerkUnlock {
	out := make([]PerkUnlock, len(perks))
	copy(out, perks)
	return out
}

package engine

import (
	"fmt"

	"github.com/scrypster/kinship/pkg/types"
)

// MarriageLabel is used for paths through marriage that have no specific term.
const MarriageLabel = "related by marriage"

// Describe classifies path into a kinship label naming what the target is to
// the source. Gendered terms follow the target's recorded sex; unknown sex
// yields the neutral term. A nil path yields the zero descriptor.
func Describe(path *types.RelationshipPath) types.RelationshipDescriptor {
	var d types.RelationshipDescriptor
	if path == nil {
		return d
	}
	for _, h := range path.Hops {
		switch h.Kind {
		case types.EdgeParent:
			d.Up++
		case types.EdgeChild:
			d.Down++
		default:
			d.Lateral++
		}
	}
	sex := path.TargetSex()

	switch {
	case len(path.Hops) == 0:
		d.Kind = types.RelationshipSelf
		d.Label = "self"
		return d

	case d.Lateral == 0:
		if !describeBlood(&d, path.Hops, sex) {
			d.Kind = types.RelationshipMarriage
			d.Label = MarriageLabel
		}
		return d

	case d.Lateral == 1 && len(path.Hops) == 1:
		d.Kind = types.RelationshipSpouse
		d.Label = gendered(sex, "husband", "wife", "spouse")
		return d

	case d.Lateral == 1:
		var blood []types.Hop
		switch {
		case path.Hops[0].Kind == types.EdgeSpouse:
			blood = path.Hops[1:]
		case path.Hops[len(path.Hops)-1].Kind == types.EdgeSpouse:
			blood = path.Hops[:len(path.Hops)-1]
		}
		if blood != nil && describeBlood(&d, blood, sex) {
			d.Kind = types.RelationshipInLaw
			d.Label += "-in-law"
			d.InLaw = true
			return d
		}
	}

	d.Degree, d.Removal = 0, 0
	d.Kind = types.RelationshipMarriage
	d.Label = MarriageLabel
	return d
}

// describeBlood labels a path made only of parent and child hops. It reports
// false when the path descends and then ascends again, which has no blood
// term.
func describeBlood(d *types.RelationshipDescriptor, hops []types.Hop, sex types.Sex) bool {
	up, down := 0, 0
	for _, h := range hops {
		switch h.Kind {
		case types.EdgeParent:
			if down > 0 {
				return false
			}
			up++
		case types.EdgeChild:
			down++
		default:
			return false
		}
	}

	switch {
	case up > 0 && down == 0:
		d.Kind = types.RelationshipLineal
		d.Label = linealLabel(up, sex, "father", "mother", "parent")
	case down > 0 && up == 0:
		d.Kind = types.RelationshipLineal
		d.Label = linealLabel(down, sex, "son", "daughter", "child")
	default:
		d.Kind = types.RelationshipCollateral
		d.Degree = min(up, down) - 1
		d.Removal = abs(up - down)
		d.Label = collateralLabel(up, down, d.Degree, d.Removal, sex)
	}
	return true
}

func linealLabel(generations int, sex types.Sex, male, female, neutral string) string {
	base := gendered(sex, male, female, neutral)
	if generations == 1 {
		return base
	}
	return greatPrefix(generations-2) + "grand" + base
}

func collateralLabel(up, down, degree, removal int, sex types.Sex) string {
	if degree > 0 {
		return ordinal(degree) + " cousin" + removalSuffix(removal)
	}
	switch {
	case removal == 0:
		return gendered(sex, "brother", "sister", "sibling")
	case up > down:
		return greatPrefix(removal-1) + gendered(sex, "uncle", "aunt", "aunt/uncle")
	default:
		return greatPrefix(removal-1) + gendered(sex, "nephew", "niece", "niece/nephew")
	}
}

func greatPrefix(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "great-"
	default:
		return fmt.Sprintf("%d× great-", n)
	}
}

func removalSuffix(removal int) string {
	switch removal {
	case 0:
		return ""
	case 1:
		return " once removed"
	case 2:
		return " twice removed"
	default:
		return fmt.Sprintf(" %d times removed", removal)
	}
}

var ordinalWords = []string{"", "first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

func ordinal(n int) string {
	if n > 0 && n < len(ordinalWords) {
		return ordinalWords[n]
	}
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

func gendered(sex types.Sex, male, female, neutral string) string {
	switch sex {
	case types.SexMale:
		return male
	case types.SexFemale:
		return female
	default:
		return neutral
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

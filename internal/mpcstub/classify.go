package mpcstub

// Hand categories reported with showdown results. Ranking comes from the
// evaluator; this is purely the display/category byte.
const (
	CategoryHighCard      uint8 = 0
	CategoryPair          uint8 = 1
	CategoryTwoPair       uint8 = 2
	CategoryThreeOfAKind  uint8 = 3
	CategoryStraight      uint8 = 4
	CategoryFlush         uint8 = 5
	CategoryFullHouse     uint8 = 6
	CategoryFourOfAKind   uint8 = 7
	CategoryStraightFlush uint8 = 8
	CategoryRoyalFlush    uint8 = 9
)

// classify7 returns the best category reachable with any 5 of the 7 cards.
func classify7(cards [7]uint8) uint8 {
	var best uint8
	var five [5]uint8
	var idx [5]int
	var rec func(start, k int)
	rec = func(start, k int) {
		if k == 5 {
			for i := 0; i < 5; i++ {
				five[i] = cards[idx[i]]
			}
			if c := classify5(five); c > best {
				best = c
			}
			return
		}
		for i := start; i <= 7-(5-k); i++ {
			idx[k] = i
			rec(i+1, k+1)
		}
	}
	rec(0, 0)
	return best
}

// classify5 categorizes exactly five cards. Ranks: value%13, 0 = two,
// 12 = ace; the wheel (A-2-3-4-5) counts as a straight.
func classify5(cards [5]uint8) uint8 {
	var rankCount [13]int
	var suitCount [4]int
	for _, c := range cards {
		rankCount[c%13]++
		suitCount[c/13]++
	}

	flush := false
	for _, n := range suitCount {
		if n == 5 {
			flush = true
		}
	}

	// Six-high is the lowest scan target; the wheel check below owns A-5.
	straightHigh := -1
	for high := 12; high >= 4; high-- {
		run := true
		for d := 0; d < 5; d++ {
			if rankCount[high-d] == 0 {
				run = false
				break
			}
		}
		if run {
			straightHigh = high
			break
		}
	}
	// Wheel: ace plays low under the five.
	if straightHigh < 0 && rankCount[12] > 0 &&
		rankCount[0] > 0 && rankCount[1] > 0 && rankCount[2] > 0 && rankCount[3] > 0 {
		straightHigh = 3
	}

	if flush && straightHigh == 12 {
		return CategoryRoyalFlush
	}
	if flush && straightHigh >= 0 {
		return CategoryStraightFlush
	}

	var pairs, trips, quads int
	for _, n := range rankCount {
		switch n {
		case 2:
			pairs++
		case 3:
			trips++
		case 4:
			quads++
		}
	}

	switch {
	case quads == 1:
		return CategoryFourOfAKind
	case trips == 1 && pairs == 1:
		return CategoryFullHouse
	case flush:
		return CategoryFlush
	case straightHigh >= 0:
		return CategoryStraight
	case trips == 1:
		return CategoryThreeOfAKind
	case pairs == 2:
		return CategoryTwoPair
	case pairs == 1:
		return CategoryPair
	default:
		return CategoryHighCard
	}
}

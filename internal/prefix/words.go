package prefix

// 词表只包含小写 ASCII 字母，拼接后天然满足前缀字符集

var firstNames = []string{
	"alex", "anna", "ben", "carla", "chris", "daniel", "diana", "eric",
	"emma", "felix", "grace", "hannah", "henry", "ivan", "julia", "james",
	"kate", "leo", "lena", "lucas", "maria", "mark", "mia", "nathan",
	"nina", "oliver", "olivia", "paul", "rachel", "ryan", "sara", "sam",
	"sophie", "tom", "victor", "vera", "will", "zoe", "adam", "clara",
}

var lastNames = []string{
	"adams", "baker", "bennett", "brooks", "carter", "clark", "collins", "cooper",
	"davis", "evans", "fisher", "foster", "garcia", "gray", "hall", "harris",
	"hayes", "hughes", "jordan", "kelly", "lewis", "martin", "miller", "moore",
	"morgan", "murphy", "nelson", "parker", "perry", "reed", "russell", "scott",
	"shaw", "stewart", "taylor", "turner", "walker", "ward", "wood", "young",
}

var words = []string{
	"amber", "anchor", "aspen", "atlas", "birch", "breeze", "cedar", "comet",
	"coral", "delta", "ember", "falcon", "fern", "harbor", "hazel", "indigo",
	"island", "jasper", "lotus", "maple", "meadow", "nova", "ocean", "orbit",
	"pepper", "pixel", "quartz", "raven", "river", "sage", "sierra", "summit",
	"thunder", "tulip", "velvet", "willow", "winter", "zenith", "cobalt", "lumen",
}

var (
	consonants = []string{"b", "d", "f", "g", "k", "l", "m", "n", "p", "r", "s", "t", "v", "z"}
	vowels     = []string{"a", "e", "i", "o", "u"}
	codas      = []string{"", "", "", "n", "r", "l", "s"}
)

// separators 名字组合使用的分隔符，空串表示直接拼接
var separators = []string{".", "_", "-", ""}

// blockedMarkers 一眼就能看出是一次性邮箱的片段
var blockedMarkers = []string{
	"temp", "trash", "burner", "spam", "fake", "junk", "throwaway", "disposable",
}

package browser

import "strconv"

type rgb struct {
	r int
	g int
	b int
}

type browserTheme struct {
	Name       string
	HeaderBG   rgb
	HeaderFG   rgb
	PathFG     rgb
	HintFG     rgb
	DirFG      rgb
	FileFG     rgb
	SelectedBG rgb
	SelectedFG rgb
	DetailFG   rgb
	StatusFG   rgb
	ErrorFG    rgb
	PromptFG   rgb
	ShellTagFG rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
)

const defaultThemeName = "slate"

var browserThemes = map[string]browserTheme{
	"slate": {
		Name:       "slate",
		HeaderBG:   rgb{r: 38, g: 50, b: 68},
		HeaderFG:   rgb{r: 222, g: 231, b: 240},
		PathFG:     rgb{r: 250, g: 204, b: 21},
		HintFG:     rgb{r: 120, g: 136, b: 155},
		DirFG:      rgb{r: 96, g: 165, b: 250},
		FileFG:     rgb{r: 212, g: 218, b: 228},
		SelectedBG: rgb{r: 71, g: 85, b: 105},
		SelectedFG: rgb{r: 248, g: 250, b: 252},
		DetailFG:   rgb{r: 128, g: 142, b: 160},
		StatusFG:   rgb{r: 134, g: 239, b: 172},
		ErrorFG:    rgb{r: 248, g: 113, b: 113},
		PromptFG:   rgb{r: 255, g: 255, b: 255},
		ShellTagFG: rgb{r: 134, g: 239, b: 172},
	},
	"gruvbox": {
		Name:       "gruvbox",
		HeaderBG:   rgb{r: 60, g: 56, b: 54},
		HeaderFG:   rgb{r: 235, g: 219, b: 178},
		PathFG:     rgb{r: 250, g: 189, b: 47},
		HintFG:     rgb{r: 146, g: 131, b: 116},
		DirFG:      rgb{r: 131, g: 165, b: 152},
		FileFG:     rgb{r: 235, g: 219, b: 178},
		SelectedBG: rgb{r: 250, g: 189, b: 47},
		SelectedFG: rgb{r: 40, g: 40, b: 40},
		DetailFG:   rgb{r: 146, g: 131, b: 116},
		StatusFG:   rgb{r: 184, g: 187, b: 38},
		ErrorFG:    rgb{r: 251, g: 73, b: 52},
		PromptFG:   rgb{r: 255, g: 255, b: 255},
		ShellTagFG: rgb{r: 184, g: 187, b: 38},
	},
	"tokyo-midnight": {
		Name:       "tokyo-midnight",
		HeaderBG:   rgb{r: 26, g: 27, b: 38},
		HeaderFG:   rgb{r: 192, g: 202, b: 245},
		PathFG:     rgb{r: 224, g: 175, b: 104},
		HintFG:     rgb{r: 127, g: 133, b: 163},
		DirFG:      rgb{r: 122, g: 162, b: 247},
		FileFG:     rgb{r: 192, g: 202, b: 245},
		SelectedBG: rgb{r: 122, g: 162, b: 247},
		SelectedFG: rgb{r: 26, g: 27, b: 38},
		DetailFG:   rgb{r: 127, g: 133, b: 163},
		StatusFG:   rgb{r: 158, g: 206, b: 106},
		ErrorFG:    rgb{r: 247, g: 118, b: 142},
		PromptFG:   rgb{r: 255, g: 255, b: 255},
		ShellTagFG: rgb{r: 158, g: 206, b: 106},
	},
}

func themeForName(name string) browserTheme {
	if name == "" {
		name = defaultThemeName
	}
	if theme, ok := browserThemes[name]; ok {
		return theme
	}
	return browserThemes[defaultThemeName]
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

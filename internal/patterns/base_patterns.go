package patterns

// BasePatterns are the shared building blocks of altitude layouts, referenced
// as {NAME}.
var BasePatterns = map[string]string{
	"NUM":   `\d+(?:\.\d+)?`,
	"FLN":   `\d{2,3}`, // flight level digits (65, 195)
	"UNIT":  `FT|F|M`,
	"REF":   `AMSL|MSL|ALT|AGL|ASFC|HEI|STD`,
	"SFC":   `SFC|GND|SURFACE`,
	"UNL":   `UNL|UNLIM|UNLIMITED`,
	"SPACE": `\s*`,
}

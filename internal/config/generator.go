package config

import (
	"bytes"
	"fmt"
	"strings"
)

// Generator generates Lua configuration code from Go structs.
type Generator struct {
	indent string // Indentation string (default: two spaces)
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate generates Lua code from a Config struct.
// Empty fields and sections are omitted. The output parses back to an
// equal Config.
func (g *Generator) Generate(config *Config) (string, error) {
	if config == nil {
		return "", fmt.Errorf("generate config: nil config")
	}

	var buf bytes.Buffer

	buf.WriteString("-- identitybridge configuration\n")
	buf.WriteString("-- The platform table (platform.api_level, platform.is_android, ...) is available here.\n\n")
	buf.WriteString(luaGlobalBridge)
	buf.WriteString(" = {\n")

	g.writeString(&buf, 1, luaFieldChannel, config.Channel)

	if config.APILevel > 0 {
		g.writeLine(&buf, 1, fmt.Sprintf("%s = %d,", luaFieldAPILevel, config.APILevel))
	}

	g.writeSection(&buf, luaFieldPackage, [][2]string{
		{luaFieldName, config.Package.Name},
		{luaFieldAPK, config.Package.APK},
	})

	r := config.Releases
	g.writeSection(&buf, luaFieldReleases, [][2]string{
		{luaFieldOwner, r.Owner},
		{luaFieldRepo, r.Repo},
		{luaFieldAPIURL, r.APIURL},
		{luaFieldKeyring, r.Keyring},
		{luaFieldTrustedRoot, r.TrustedRoot},
		{luaFieldIdentity, r.CertificateIdentity},
		{luaFieldIssuer, r.CertificateIssuer},
		{luaFieldExpect, r.Expect},
	})

	g.writeSection(&buf, luaFieldHTTP, [][2]string{
		{luaFieldAddr, config.HTTP.Addr},
	})

	buf.WriteString("}\n")

	return buf.String(), nil
}

// writeSection writes a nested table, skipping it when every field is empty.
func (g *Generator) writeSection(buf *bytes.Buffer, name string, fields [][2]string) {
	empty := true
	for _, f := range fields {
		if f[1] != "" {
			empty = false
			break
		}
	}
	if empty {
		return
	}

	g.writeLine(buf, 1, name+" = {")
	for _, f := range fields {
		g.writeString(buf, 2, f[0], f[1])
	}
	g.writeLine(buf, 1, "},")
}

// writeString writes key = "value", when value is set.
func (g *Generator) writeString(buf *bytes.Buffer, depth int, key, value string) {
	if value == "" {
		return
	}
	g.writeLine(buf, depth, key+" = "+g.quoteLuaString(value)+",")
}

func (g *Generator) writeLine(buf *bytes.Buffer, depth int, line string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(line)
	buf.WriteString("\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, "\\%03d", c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

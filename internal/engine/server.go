package engine

import "github.com/klyr/appid/internal/rules"

// Subtype is a component named after the main version of a Server header,
// such as "OpenSSL/1.0.2".
type Subtype struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// ServerInfo is the parsed form of a Server header.
type ServerInfo struct {
	Vendor   string    `json:"vendor"`
	Version  string    `json:"version,omitempty"`
	Subtypes []Subtype `json:"subtypes,omitempty"`
}

// ServerVendorVersion splits a Server header into vendor, version and
// "name/version" subtypes. Parenthesized comments never start a subtype and
// a '<' ends the scan. When subtypes exist the version runs up to the first
// one.
func ServerVendorVersion(value []byte) ServerInfo {
	var info ServerInfo

	vendorLen := len(value)
	slash := -1
	for i, c := range value {
		if c == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		info.Vendor = rules.Truncate(string(value), rules.MaxVersionLen)
		return info
	}
	vendorLen = slash
	info.Vendor = rules.Truncate(string(value[:vendorLen]), rules.MaxVersionLen)

	ver := slash + 1
	versionLen := 0
	subname, subnameLen, subver := -1, 0, -1
	inParen := false

	addSubtype := func(p int) {
		if subname >= 0 && subnameLen > 0 && subver >= 0 && p > subver {
			info.Subtypes = append(info.Subtypes, Subtype{
				Service: rules.Truncate(string(value[subname:subname+subnameLen]), rules.MaxVersionLen),
				Version: rules.Truncate(string(value[subver:p]), rules.MaxVersionLen),
			})
		}
	}

	p := ver
	for ; p < len(value) && value[p] != 0; p++ {
		c := value[p]
		if c == '(' {
			subname = -1
			inParen = true
		} else if c == ')' {
			subname = -1
			inParen = false
		} else if c == '<' {
			break
		} else if inParen {
			continue
		} else if c == ' ' || c == '\t' {
			addSubtype(p)
			subname, subnameLen, subver = p+1, 0, -1
		} else if c == '/' && subname >= 0 {
			if versionLen <= 0 {
				versionLen = subname - ver - 1
			}
			subnameLen = p - subname
			subver = p + 1
		}
	}
	addSubtype(p)

	if versionLen <= 0 {
		versionLen = p - ver
	}
	if versionLen > 0 {
		info.Version = rules.Truncate(string(value[ver:ver+versionLen]), rules.MaxVersionLen)
	}
	return info
}

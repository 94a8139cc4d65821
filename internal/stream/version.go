// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Version is a version of XMPP as negotiated on the initial stream header.
type Version struct {
	Major uint8
	Minor uint8
}

// DefaultVersion is the only stream version this package negotiates.
var DefaultVersion = Version{Major: 1, Minor: 0}

// ParseVersion parses a string of the form "Major.Minor" into a Version.
func ParseVersion(s string) (Version, error) {
	v := Version{}

	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return v, errors.New("stream: version must have a single separator")
	}

	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return v, err
	}
	v.Major = uint8(major)

	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return v, err
	}
	v.Minor = uint8(minor)

	return v, nil
}

// MustParseVersion is like ParseVersion but panics if s cannot be parsed.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic("stream: " + err.Error())
	}
	return v
}

// Less reports whether v is a lower version than v2.
func (v Version) Less(v2 Version) bool {
	if v.Major != v2.Major {
		return v.Major < v2.Major
	}
	return v.Minor < v2.Minor
}

// String returns the string representation of v in the form "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (v Version) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: v.String()}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr.
func (v *Version) UnmarshalXMLAttr(attr xml.Attr) error {
	newVersion, err := ParseVersion(attr.Value)
	if err != nil {
		return err
	}
	*v = newVersion
	return nil
}

package protocol

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	recordSep = "?"
	fieldSep  = ","
)

var axisNames = [3]string{"x", "y", "z"}

// Decode parses a raw datagram payload into a SensorReading.
// Whitespace anywhere in the payload is ignored. Both a G and an R record
// must be present; records with other tags are skipped. If a tag appears
// more than once the last record wins. No partial reading is ever returned.
func Decode(payload []byte) (SensorReading, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(payload))

	records := make(map[string][]string, 2)
	for _, rec := range strings.Split(compact, recordSep) {
		if rec == "" {
			continue
		}
		parts := strings.Split(rec, fieldSep)
		records[parts[0]] = parts[1:]
	}

	gyro, err := parseVector(records, TagGyroscope)
	if err != nil {
		return SensorReading{}, err
	}
	orient, err := parseVector(records, TagOrientation)
	if err != nil {
		return SensorReading{}, err
	}

	return SensorReading{Gyroscope: gyro, Orientation: orient}, nil
}

func parseVector(records map[string][]string, tag string) (Vector3, error) {
	fields, ok := records[tag]
	if !ok || len(fields) != 3 {
		return Vector3{}, &DecodeError{Kind: ErrMissingField, Field: tag}
	}

	var vals [3]float64
	for i, s := range fields {
		if !isDecimal(s) {
			return Vector3{}, &DecodeError{
				Kind:  ErrMalformedNumber,
				Field: tag + "." + axisNames[i],
				Value: s,
			}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Vector3{}, &DecodeError{
				Kind:  ErrMalformedNumber,
				Field: tag + "." + axisNames[i],
				Value: s,
			}
		}
		vals[i] = v
	}
	return Vector3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// isDecimal reports whether s uses only the characters of a decimal float
// literal. ParseFloat alone would also take hex mantissas, digit
// separators and the words Inf and NaN.
func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
		case c == '.', c == '+', c == '-', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return s != ""
}

// Encode renders a reading in the canonical wire form "G,x,y,z?R,x,y,z".
func Encode(r SensorReading) []byte {
	var b strings.Builder
	writeRecord(&b, TagGyroscope, r.Gyroscope)
	b.WriteString(recordSep)
	writeRecord(&b, TagOrientation, r.Orientation)
	return []byte(b.String())
}

func writeRecord(b *strings.Builder, tag string, v Vector3) {
	b.WriteString(tag)
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		b.WriteString(fieldSep)
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

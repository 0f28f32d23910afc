package harvest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"androidinfo/internal/source"
)

var (
	annotationZipPattern = regexp.MustCompile(`^android-.*/data/annotations\.zip$`)
	methodNamePattern    = regexp.MustCompile(`^(.*?)\s(.*?)\s(.*?)\((.*?)\)\s?(\d+)?$`)
	fieldNamePattern     = regexp.MustCompile(`^(.*?)\s(.*?)$`)
)

// jvmSignatures maps JVM primitive type names to their descriptors.
var jvmSignatures = map[string]string{
	"void":    "V",
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// APIMethod is a method-level permission requirement target.
type APIMethod struct {
	ClassName   string   `json:"class_name"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Args        []string `json:"args"`
	ReturnValue string   `json:"return_value"`
	Signature   string   `json:"signature"`
}

// APIField is a field-level permission requirement target.
type APIField struct {
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// APIPermission links one API surface element to the permissions it
// requires. AnyOf distinguishes "any of these" from "all of these".
type APIPermission struct {
	API         any      `json:"api"`
	Permissions []string `json:"permissions"`
	AnyOf       bool     `json:"any_of"`
}

// APIMappingTask harvests the RequiresPermission annotations shipped in
// one API level's SDK platform package. The data source is keyed by API
// level, not by source tag, so the task carries its level and treats
// the resolved ref as a liveness witness only.
type APIMappingTask struct {
	Repo *source.Repository
	API  int
}

func (t *APIMappingTask) Harvest(ctx context.Context, _ string) ([]APIPermission, error) {
	pkg, err := t.Repo.LatestPackage(ctx, fmt.Sprintf("platforms;android-%d", t.API), source.StableChannel)
	if err != nil {
		return nil, mapNotFound(err)
	}
	archiveURL, err := pkg.ArchiveURL()
	if err != nil {
		return nil, err
	}
	data, err := t.Repo.DownloadArchive(ctx, archiveURL)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return extractAPIPermissions(data, t.API)
}

func extractAPIPermissions(platformZip []byte, api int) ([]APIPermission, error) {
	zr, err := zip.NewReader(bytes.NewReader(platformZip), int64(len(platformZip)))
	if err != nil {
		return nil, fmt.Errorf("platform %d: open zip: %w", api, err)
	}
	var annotations *zip.File
	for _, f := range zr.File {
		if annotationZipPattern.MatchString(f.Name) {
			annotations = f
			break
		}
	}
	if annotations == nil {
		return nil, fmt.Errorf("platform %d: annotations.zip not found in package", api)
	}
	inner, err := readZipFile(annotations)
	if err != nil {
		return nil, fmt.Errorf("platform %d: read annotations.zip: %w", api, err)
	}
	izr, err := zip.NewReader(bytes.NewReader(inner), int64(len(inner)))
	if err != nil {
		return nil, fmt.Errorf("platform %d: open annotations.zip: %w", api, err)
	}

	seen := map[string]APIPermission{}
	for _, f := range izr.File {
		if path.Base(f.Name) != "annotations.xml" {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("platform %d: read %s: %w", api, f.Name, err)
		}
		parsed, err := parseAnnotations(raw)
		if err != nil {
			return nil, fmt.Errorf("platform %d: %s: %w", api, f.Name, err)
		}
		for key, ap := range parsed {
			seen[key] = ap
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]APIPermission, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type annotationsXML struct {
	Items []struct {
		Name        string `xml:"name,attr"`
		Annotations []struct {
			Name string `xml:"name,attr"`
			Vals []struct {
				Name string `xml:"name,attr"`
				Val  string `xml:"val,attr"`
			} `xml:"val"`
		} `xml:"annotation"`
	} `xml:"item"`
}

// parseAnnotations extracts every item carrying a RequiresPermission
// annotation, keyed by a stable dedup string.
func parseAnnotations(raw []byte) (map[string]APIPermission, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	var doc annotationsXML
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}

	out := map[string]APIPermission{}
	for _, item := range doc.Items {
		for _, ann := range item.Annotations {
			if !strings.Contains(ann.Name, "RequiresPermission") || len(ann.Vals) == 0 {
				continue
			}
			val := ann.Vals[0]
			permissions := splitAnnotationVal(val.Val)
			ap, err := buildAPIPermission(item.Name, permissions, val.Name == "anyOf")
			if err != nil {
				return nil, err
			}
			out[dedupKey(ap)] = ap
			break
		}
	}
	return out, nil
}

func splitAnnotationVal(val string) []string {
	val = strings.Trim(val, "{} ")
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out
}

// buildAPIPermission parses a JVM item name into a method or field
// target. Parameter-level annotations (trailing index) are unsupported.
func buildAPIPermission(name string, permissions []string, anyOf bool) (APIPermission, error) {
	if m := methodNamePattern.FindStringSubmatch(name); m != nil {
		if m[5] != "" {
			return APIPermission{}, fmt.Errorf("unknown jvm api format: %s", name)
		}
		var args []string
		for _, a := range strings.Split(m[4], ",") {
			if a = strings.TrimSpace(a); a != "" {
				args = append(args, a)
			}
		}
		if args == nil {
			args = []string{}
		}
		return APIPermission{
			API: APIMethod{
				ClassName:   m[1],
				Name:        m[3],
				Type:        "method",
				Args:        args,
				ReturnValue: m[2],
				Signature:   methodSignature(args, m[2]),
			},
			Permissions: permissions,
			AnyOf:       anyOf,
		}, nil
	}
	if m := fieldNamePattern.FindStringSubmatch(name); m != nil {
		return APIPermission{
			API:         APIField{ClassName: m[1], Name: m[2], Type: "field"},
			Permissions: permissions,
			AnyOf:       anyOf,
		}, nil
	}
	return APIPermission{}, fmt.Errorf("unknown jvm api format: %s", name)
}

var genericOrArrayPattern = regexp.MustCompile(`<.*>|\[\]`)

func jvmTypeSignature(typeName string) string {
	isArray := strings.HasSuffix(typeName, "[]")
	typeName = genericOrArrayPattern.ReplaceAllString(typeName, "")
	sig, ok := jvmSignatures[typeName]
	if !ok {
		sig = "L" + strings.ReplaceAll(typeName, ".", "/") + ";"
	}
	if isArray {
		sig = "[" + sig
	}
	return sig
}

func methodSignature(args []string, returnValue string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range args {
		sb.WriteString(jvmTypeSignature(a))
	}
	sb.WriteByte(')')
	sb.WriteString(jvmTypeSignature(returnValue))
	return sb.String()
}

func dedupKey(ap APIPermission) string {
	var sb strings.Builder
	switch api := ap.API.(type) {
	case APIMethod:
		sb.WriteString("method ")
		sb.WriteString(api.ClassName)
		sb.WriteByte(' ')
		sb.WriteString(api.Name)
		sb.WriteByte(' ')
		sb.WriteString(api.Signature)
	case APIField:
		sb.WriteString("field ")
		sb.WriteString(api.ClassName)
		sb.WriteByte(' ')
		sb.WriteString(api.Name)
	}
	sb.WriteByte(' ')
	sb.WriteString(strings.Join(ap.Permissions, ","))
	if ap.AnyOf {
		sb.WriteString(" anyOf")
	}
	return sb.String()
}

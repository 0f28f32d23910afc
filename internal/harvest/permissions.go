package harvest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"androidinfo/internal/source"
)

const androidManifestNS = "http://schemas.android.com/apk/res/android"

var (
	coreManifestPath = source.CodePath{Project: "platform/frameworks/base", Path: "core/res/AndroidManifest.xml"}
	coreStringsPath  = source.CodePath{Project: "platform/frameworks/base", Path: "core/res/res/values/strings.xml"}
)

// PermissionComment captures the API-surface markers from the comment
// immediately preceding a permission declaration.
type PermissionComment struct {
	Deprecated bool `json:"deprecated"`
	SystemAPI  bool `json:"system_api"`
	TestAPI    bool `json:"test_api"`
	Hide       bool `json:"hide"`
}

type PermissionGroup struct {
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Label       *string           `json:"label"`
	Priority    int               `json:"priority"`
	Comment     PermissionComment `json:"comment"`
}

type Permission struct {
	Name             string            `json:"name"`
	Description      *string           `json:"description"`
	Label            *string           `json:"label"`
	Group            *PermissionGroup  `json:"group"`
	ProtectionLevels []string          `json:"protection_levels"`
	PermissionFlags  []string          `json:"permission_flags"`
	Priority         int               `json:"priority"`
	Comment          PermissionComment `json:"comment"`
}

// Permissions is the payload of one permission-definitions snapshot.
type Permissions struct {
	Groups      map[string]PermissionGroup `json:"groups"`
	Permissions map[string]Permission      `json:"permissions"`
}

// PermissionTask harvests the framework permission and permission-group
// declarations from the core manifest of one tree, resolving @string/
// references through the core strings resources of the same tree.
type PermissionTask struct {
	Source *source.GoogleSource
}

func (t *PermissionTask) Harvest(ctx context.Context, ref string) (Permissions, error) {
	manifest, err := t.Source.SourceFile(ctx, coreManifestPath, ref)
	if err != nil {
		return Permissions{}, mapNotFound(err)
	}
	rawGroups, rawPerms, err := parseCoreManifest(manifest)
	if err != nil {
		return Permissions{}, fmt.Errorf("core manifest at %s: %w", ref, err)
	}

	res := newResStrings(t.Source, ref)
	groups := make(map[string]PermissionGroup, len(rawGroups))
	for name, rg := range rawGroups {
		g, err := rg.finalize(ctx, res)
		if err != nil {
			return Permissions{}, fmt.Errorf("permission group %s at %s: %w", name, ref, err)
		}
		groups[name] = g
	}
	perms := make(map[string]Permission, len(rawPerms))
	for name, rp := range rawPerms {
		p, err := rp.finalize(ctx, res, groups)
		if err != nil {
			return Permissions{}, fmt.Errorf("permission %s at %s: %w", name, ref, err)
		}
		perms[name] = p
	}
	return Permissions{Groups: groups, Permissions: perms}, nil
}

type rawGroup struct {
	name        string
	description *string
	label       *string
	priority    *string
	comment     PermissionComment
}

func (rg rawGroup) finalize(ctx context.Context, res *resStrings) (PermissionGroup, error) {
	description, err := res.resolve(ctx, rg.description)
	if err != nil {
		return PermissionGroup{}, err
	}
	label, err := res.resolve(ctx, rg.label)
	if err != nil {
		return PermissionGroup{}, err
	}
	priority, err := parsePriority(rg.priority)
	if err != nil {
		return PermissionGroup{}, err
	}
	return PermissionGroup{
		Name:        rg.name,
		Description: description,
		Label:       label,
		Priority:    priority,
		Comment:     rg.comment,
	}, nil
}

type rawPermission struct {
	name            string
	description     *string
	label           *string
	group           *string
	protectionLevel *string
	permissionFlags *string
	priority        *string
	comment         PermissionComment
}

func (rp rawPermission) finalize(ctx context.Context, res *resStrings, groups map[string]PermissionGroup) (Permission, error) {
	description, err := res.resolve(ctx, rp.description)
	if err != nil {
		return Permission{}, err
	}
	label, err := res.resolve(ctx, rp.label)
	if err != nil {
		return Permission{}, err
	}
	priority, err := parsePriority(rp.priority)
	if err != nil {
		return Permission{}, err
	}
	var group *PermissionGroup
	if rp.group != nil {
		g, ok := groups[*rp.group]
		if !ok {
			return Permission{}, fmt.Errorf("unknown permission group %s", *rp.group)
		}
		group = &g
	}
	return Permission{
		Name:             rp.name,
		Description:      description,
		Label:            label,
		Group:            group,
		ProtectionLevels: splitList(rp.protectionLevel),
		PermissionFlags:  splitList(rp.permissionFlags),
		Priority:         priority,
		Comment:          rp.comment,
	}, nil
}

// splitList divides a |-separated manifest attribute into its values.
func splitList(text *string) []string {
	if text == nil {
		return []string{}
	}
	return strings.Split(*text, "|")
}

func parsePriority(text *string) (int, error) {
	if text == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(*text)
	if err != nil {
		return 0, fmt.Errorf("bad priority %q: %w", *text, err)
	}
	return n, nil
}

// parseCoreManifest walks the manifest token stream so each permission
// can be associated with the comment directly preceding it.
func parseCoreManifest(content string) (map[string]rawGroup, map[string]rawPermission, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = false

	groups := map[string]rawGroup{}
	perms := map[string]rawPermission{}
	var lastComment string
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse manifest: %w", err)
		}
		switch t := tok.(type) {
		case xml.Comment:
			lastComment = string(t)
		case xml.StartElement:
			depth++
			if depth == 2 {
				switch t.Name.Local {
				case "permission-group":
					if name := androidAttr(t, "name"); name != nil {
						groups[*name] = rawGroup{
							name:        *name,
							description: androidAttr(t, "description"),
							label:       androidAttr(t, "label"),
							priority:    androidAttr(t, "priority"),
							comment:     commentFlags(lastComment),
						}
					}
				case "permission":
					if name := androidAttr(t, "name"); name != nil {
						perms[*name] = rawPermission{
							name:            *name,
							description:     androidAttr(t, "description"),
							label:           androidAttr(t, "label"),
							group:           androidAttr(t, "group"),
							protectionLevel: androidAttr(t, "protectionLevel"),
							permissionFlags: androidAttr(t, "permissionFlags"),
							priority:        androidAttr(t, "priority"),
							comment:         commentFlags(lastComment),
						}
					}
				}
			}
			lastComment = ""
		case xml.EndElement:
			depth--
			lastComment = ""
		}
	}
	return groups, perms, nil
}

// androidAttr returns the android-namespaced attribute value, or nil.
func androidAttr(e xml.StartElement, name string) *string {
	for _, a := range e.Attr {
		if a.Name.Local != name {
			continue
		}
		if a.Name.Space == androidManifestNS || a.Name.Space == "android" {
			v := a.Value
			return &v
		}
	}
	return nil
}

func commentFlags(comment string) PermissionComment {
	return PermissionComment{
		Deprecated: strings.Contains(comment, "@deprecated"),
		SystemAPI:  strings.Contains(comment, "@SystemApi"),
		TestAPI:    strings.Contains(comment, "@TestApi"),
		Hide:       strings.Contains(comment, "@hide"),
	}
}

// resStrings lazily loads the core string resources of one tree and
// resolves @string/ references against them.
type resStrings struct {
	src     *source.GoogleSource
	ref     string
	strings map[string]string
}

func newResStrings(src *source.GoogleSource, ref string) *resStrings {
	return &resStrings{src: src, ref: ref}
}

func (r *resStrings) load(ctx context.Context) error {
	if r.strings != nil {
		return nil
	}
	content, err := r.src.SourceFile(ctx, coreStringsPath, r.ref)
	if err != nil {
		return mapNotFound(err)
	}
	var parsed struct {
		Strings []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"string"`
	}
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = false
	if err := dec.Decode(&parsed); err != nil {
		return fmt.Errorf("parse strings.xml: %w", err)
	}
	r.strings = make(map[string]string, len(parsed.Strings))
	for _, s := range parsed.Strings {
		r.strings[s.Name] = s.Value
	}
	return nil
}

// resolve maps an @string/ reference to its resource value; plain text
// passes through untouched. Unknown references are a parse failure.
func (r *resStrings) resolve(ctx context.Context, text *string) (*string, error) {
	if text == nil || !strings.HasPrefix(*text, "@") {
		return text, nil
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	if key, ok := strings.CutPrefix(*text, "@string/"); ok {
		if v, ok := r.strings[key]; ok {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("unknown string resource id: %s", *text)
}

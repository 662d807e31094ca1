package models

import (
	"encoding/json"
	"testing"
)

func TestFormatRecordID(t *testing.T) {
	tests := []struct {
		id   string
		typ  EntityType
		want string
	}{
		{"42", EntityJob, "J-42"},
		{"7", EntityOrganization, "O-7"},
		{"3", EntityJobSeeker, "JS-3"},
		{"11", EntityLead, "L-11"},
		{"9", EntityTask, "T-9"},
		{"5", EntityPlacement, "P-5"},
		{"12", EntityHiringManager, "HM-12"},
		{"99", EntityType("unknown"), "99"},
	}
	for _, tt := range tests {
		if got := FormatRecordID(tt.id, tt.typ); got != tt.want {
			t.Errorf("FormatRecordID(%q, %q) = %q, want %q", tt.id, tt.typ, got, tt.want)
		}
	}
}

func TestEntityTypes_PriorityOrder(t *testing.T) {
	want := []EntityType{
		EntityJob, EntityOrganization, EntityJobSeeker, EntityLead,
		EntityTask, EntityPlacement, EntityHiringManager,
	}
	got := EntityTypes()
	if len(got) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestParseEntityType(t *testing.T) {
	tests := map[string]EntityType{
		"job":             EntityJob,
		"jobs":            EntityJob,
		"Hiring Manager":  EntityHiringManager,
		"hiring-managers": EntityHiringManager,
		"hm":              EntityHiringManager,
		"job-seekers":     EntityJobSeeker,
		"JS":              EntityJobSeeker,
		"task":            EntityTask,
	}
	for in, want := range tests {
		got, err := ParseEntityType(in)
		if err != nil {
			t.Errorf("ParseEntityType(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseEntityType(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseEntityType("invoice"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestTitleOf(t *testing.T) {
	if got := TitleOf(EntityJob, map[string]any{"job_title": "Backend Engineer"}); got != "Backend Engineer" {
		t.Errorf("expected job title, got %q", got)
	}
	if got := TitleOf(EntityJob, map[string]any{}); got != "Untitled Job" {
		t.Errorf("expected default job title, got %q", got)
	}
	got := TitleOf(EntityHiringManager, map[string]any{"first_name": "Ada", "last_name": "Lovelace"})
	if got != "Ada Lovelace" {
		t.Errorf("expected joined name, got %q", got)
	}
}

func TestStringify(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(`{"a": 42, "b": 1.5, "c": null, "d": "x", "e": true}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]string{"a": "42", "b": "1.5", "c": "", "d": "x", "e": "true"}
	for k, w := range want {
		if got := Stringify(decoded[k]); got != w {
			t.Errorf("Stringify(%s) = %q, want %q", k, got, w)
		}
	}
}

func TestNewReference(t *testing.T) {
	ref := NewReference("42", EntityJob, "Backend Engineer")
	if ref.Value != "J-42" {
		t.Errorf("expected value J-42, got %q", ref.Value)
	}
	if ref.Display != "J-42 Backend Engineer" {
		t.Errorf("expected display 'J-42 Backend Engineer', got %q", ref.Display)
	}
	if ref.Key() != "job:42" {
		t.Errorf("expected key job:42, got %q", ref.Key())
	}
}

func TestEntityReference_UnmarshalNumericID(t *testing.T) {
	var ref EntityReference
	if err := json.Unmarshal([]byte(`{"id": 42, "type": "Job Seeker", "label": "JS-42 Jane"}`), &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ref.ID != "42" {
		t.Errorf("expected id 42, got %q", ref.ID)
	}
	if ref.Type != EntityJobSeeker {
		t.Errorf("expected job_seeker, got %q", ref.Type)
	}
	if ref.Display != "JS-42 Jane" {
		t.Errorf("expected display from label, got %q", ref.Display)
	}
}

func TestNote_UnmarshalAboutString(t *testing.T) {
	body := `{"id": 7, "text": "hi", "action": "Call",
		"about": "[{\"id\":\"42\",\"type\":\"job\",\"display\":\"J-42 Dev\",\"value\":\"J-42\"}]",
		"created_at": "2025-03-01 09:30:00"}`
	var n Note
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.ID != "7" {
		t.Errorf("expected id 7, got %q", n.ID)
	}
	if len(n.AboutReferences) != 1 || n.AboutReferences[0].Value != "J-42" {
		t.Errorf("expected about reference decoded from string, got %+v", n.AboutReferences)
	}
	if n.CreatedAt.IsZero() {
		t.Error("expected created_at to be parsed")
	}
}

func TestNote_UnmarshalAboutForms(t *testing.T) {
	tests := []struct {
		name  string
		about string
		want  int
	}{
		{"array", `[{"id":"42","type":"job","display":"J-42 Dev","value":"J-42"}]`, 1},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"malformed string", `"not json"`, 0},
		{"object", `{"id":"42"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"id": "1", "text": "hi", "action": "Call", "about": ` + tt.about + `}`
			var n Note
			if err := json.Unmarshal([]byte(body), &n); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(n.AboutReferences) != tt.want {
				t.Errorf("expected %d about references, got %+v", tt.want, n.AboutReferences)
			}
			if n.Text != "hi" {
				t.Errorf("note text lost: %+v", n)
			}
		})
	}
}

func TestNote_NotesListWithArrayAbout(t *testing.T) {
	body := `[{"id": 1, "text": "a", "about": "[]"},
		{"id": 2, "text": "b", "about": [{"id":"9","type":"organization","display":"O-9 Acme","value":"O-9"}]}]`
	var notes []Note
	if err := json.Unmarshal([]byte(body), &notes); err != nil {
		t.Fatalf("a list mixing about forms must decode: %v", err)
	}
	if len(notes) != 2 || len(notes[1].AboutReferences) != 1 || notes[1].AboutReferences[0].Display != "O-9 Acme" {
		t.Errorf("unexpected notes %+v", notes)
	}
}

func TestFieldDefinition_HiddenAliases(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"field_name": "a", "is_hidden": true}`, true},
		{`{"field_name": "a", "hidden": true}`, true},
		{`{"field_name": "a", "isHidden": true}`, true},
		{`{"field_name": "a", "is_hidden": "1"}`, true},
		{`{"field_name": "a", "is_hidden": false}`, false},
		{`{"field_name": "a"}`, false},
	}
	for _, tt := range tests {
		var d FieldDefinition
		if err := json.Unmarshal([]byte(tt.body), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.body, err)
		}
		if d.Hidden != tt.want {
			t.Errorf("%s: expected hidden=%v, got %v", tt.body, tt.want, d.Hidden)
		}
	}
}

func TestFieldDefinition_StableKey(t *testing.T) {
	tests := []struct {
		def  FieldDefinition
		want string
	}{
		{FieldDefinition{ID: "5", FieldName: "Field_5", FieldKey: "email", APIName: "api_email"}, "email"},
		{FieldDefinition{ID: "5", FieldName: "Field_5", APIName: "api_email"}, "api_email"},
		{FieldDefinition{ID: "5", FieldName: "Field_5"}, "Field_5"},
		{FieldDefinition{ID: "5"}, "5"},
	}
	for _, tt := range tests {
		if got := tt.def.StableKey(); got != tt.want {
			t.Errorf("StableKey(%+v) = %q, want %q", tt.def, got, tt.want)
		}
	}
}

func TestParseRecordID(t *testing.T) {
	tests := []struct {
		in     string
		wantT  EntityType
		wantID string
	}{
		{"J-42", EntityJob, "42"},
		{"js-5", EntityJobSeeker, "5"},
		{" HM-7 ", EntityHiringManager, "7"},
	}
	for _, tt := range tests {
		typ, id, err := ParseRecordID(tt.in)
		if err != nil || typ != tt.wantT || id != tt.wantID {
			t.Errorf("ParseRecordID(%q) = %q, %q, %v", tt.in, typ, id, err)
		}
	}
	for _, bad := range []string{"42", "X-1", "J-"} {
		if _, _, err := ParseRecordID(bad); err == nil {
			t.Errorf("ParseRecordID(%q) should fail", bad)
		}
	}
}

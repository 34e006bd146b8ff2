package component

import "testing"

func TestContainsBannedReasonWalksChildren(t *testing.T) {
	h := FromComponent(&Text{
		Content: "You are ",
		Extra: []Component{
			&Text{Content: "banned"},
			&Text{Content: " from this server"},
		},
	})
	if !ContainsBannedReason(h, []string{"banned"}) {
		t.Fatal("expected banned reason to be found in nested child")
	}
	if ContainsBannedReason(h, []string{"BANNED"}) {
		t.Fatal("matching must be case-sensitive (byte-wise contains)")
	}
}

func TestPlainTextFlattensTranslatable(t *testing.T) {
	h := FromComponent(&Translatable{
		Key:  "multiplayer.disconnect.duplicate_login",
		With: []Component{&Text{Content: "extra"}},
	})
	if !ContainsBannedReason(h, []string{"duplicate_login"}) {
		t.Fatal("expected translation key to be scanned")
	}
}

func TestMarshalJSONRoundTripsRawBytes(t *testing.T) {
	raw := []byte(`{"text":"hello"}`)
	h := FromJSON(raw)
	out, err := h.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(raw) {
		t.Fatalf("expected raw passthrough, got %s", out)
	}
}

package reporting

import (
	"errors"
	"testing"
)

const sampleStack = `goroutine 1 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
github.com/storyscript/platform-reporting/pkg/reporting.NewStoryError(...)
	/app/pkg/reporting/story_error.go:60
main.executeLine(0xc000012345)
	/app/main.go:42 +0x123
main.runStory()
	/app/main.go:30 +0x456
main.main()
	/app/main.go:10 +0x789`

func TestFingerprint_Stability(t *testing.T) {
	err := &tracedError{msg: "boom", stack: sampleStack}
	ec := ExceptionContext{AppUUID: "app-1", StoryName: "a.story"}

	fp1 := Fingerprint(err, ec)
	fp2 := Fingerprint(err, ec)
	if fp1 != fp2 {
		t.Errorf("Same report produced different fingerprints: %q vs %q", fp1, fp2)
	}
	if len(fp1) != 32 {
		t.Errorf("Fingerprint length = %d, want 32", len(fp1))
	}
}

func TestFingerprint_IgnoresVariableData(t *testing.T) {
	line1, line2 := 3, 9
	ec1 := ExceptionContext{ReportID: "r1", AppUUID: "app-1", StoryName: "a.story", StoryLine: &line1}
	ec2 := ExceptionContext{ReportID: "r2", AppUUID: "app-1", StoryName: "a.story", StoryLine: &line2}

	err1 := &tracedError{msg: "user 123 failed", stack: sampleStack}
	err2 := &tracedError{msg: "user 456 failed", stack: `goroutine 7 [running]:
main.executeLine(0xc000099999)
	/app/main.go:99 +0xabc
main.runStory()
	/app/main.go:31 +0xdef
main.main()
	/app/main.go:11 +0x111`}

	if Fingerprint(err1, ec1) != Fingerprint(err2, ec2) {
		t.Error("reports differing only in ids, messages, lines and addresses should share a fingerprint")
	}
}

func TestFingerprint_DistinguishesGroups(t *testing.T) {
	base := &tracedError{msg: "x", stack: sampleStack}
	ec := ExceptionContext{AppUUID: "app-1", StoryName: "a.story"}
	fp := Fingerprint(base, ec)

	if Fingerprint(base, ExceptionContext{AppUUID: "app-2", StoryName: "a.story"}) == fp {
		t.Error("different apps should not share a fingerprint")
	}
	if Fingerprint(base, ExceptionContext{AppUUID: "app-1", StoryName: "b.story"}) == fp {
		t.Error("different stories should not share a fingerprint")
	}
	if Fingerprint(errors.New("x"), ec) == fp {
		t.Error("different error types should not share a fingerprint")
	}
	withRoot := &StoryError{Message: "x", Root: errors.New("root"), stack: sampleStack}
	withOtherRoot := &StoryError{Message: "x", Root: base, stack: sampleStack}
	if Fingerprint(withRoot, ec) == Fingerprint(withOtherRoot, ec) {
		t.Error("different root cause types should not share a fingerprint")
	}
}

func TestNormalizeStackTrace(t *testing.T) {
	frames := normalizeStackTrace(sampleStack)

	expected := []string{"main.executeLine", "main.runStory", "main.main"}
	if len(frames) != len(expected) {
		t.Fatalf("normalizeStackTrace returned %v, want %v", frames, expected)
	}
	for i, want := range expected {
		if frames[i] != want {
			t.Errorf("frame[%d] = %q, want %q", i, frames[i], want)
		}
	}

	if normalizeStackTrace("") != nil {
		t.Error("empty trace should produce no frames")
	}
}

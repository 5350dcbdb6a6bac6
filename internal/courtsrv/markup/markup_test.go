package markup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
)

const availableProbe = `jQuery('#step-2').html('<div class=\"alert alert-success\">נמצאו מגרשים פנויים<\/div>\n` +
	`<div class=\"court\"><span>מגרש: <b>3<\/b><\/span> ` +
	`<a class=\"btn\" href=\"\/self_services\/invite?court_id=101&amp;duration=1.0&amp;end_time=09%3A00&amp;start_time=08%3A00\">הזמן<\/a><\/div>');`

const noCourtsProbe = `jQuery('#step-2').html('<div class=\"alert\">לא נמצאו מגרשים פנויים, נסה מועד אחר<\/div><h3>10:00-11:00<\/h3>');`

func TestParseAvailableScenario(t *testing.T) {
	got := ParseAvailability(availableProbe)

	want := availability.Result{
		Status: availability.StatusAvailable,
		Courts: []int{3},
		Slots: []availability.CourtSlot{
			{CourtNumber: 3, CourtID: 101, Duration: 1.0, StartTime: "08:00", EndTime: "09:00"},
		},
	}
	assert.Equal(t, want, got)
}

func TestParseNoCourtsScenario(t *testing.T) {
	got := ParseAvailability(noCourtsProbe)

	assert.Equal(t, availability.StatusNoCourts, got.Status)
	assert.Equal(t, []int{}, got.Courts)
	assert.Equal(t, []availability.CourtSlot{}, got.Slots)
	assert.Equal(t, []string{"10:00"}, got.SuggestedTimes)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"no-courts","courts":[],"slots":[],"suggestedTimes":["10:00"]}`, string(b))
}

func TestParseIsPure(t *testing.T) {
	for _, raw := range []string{availableProbe, noCourtsProbe, "", "garbage"} {
		assert.Equal(t, ParseAvailability(raw), ParseAvailability(raw))
	}
}

func TestParseMalformedDegrades(t *testing.T) {
	for _, raw := range []string{"", "<html>500 Internal Server Error</html>", "jQuery('#x').html(", "null"} {
		got := ParseAvailability(raw)
		assert.Equal(t, availability.NoCourts(), got, raw)
	}
}

func TestParseSuccessWithoutSlotsDowngrades(t *testing.T) {
	raw := `jQuery('#step-2').html('<div class=\"success\">ok<\/div><h3>18:00-19:00<\/h3>');`
	got := ParseAvailability(raw)
	assert.Equal(t, availability.StatusNoCourts, got.Status)
	assert.Empty(t, got.Slots)
	assert.Equal(t, []string{"18:00"}, got.SuggestedTimes)
}

func TestParseMultipleCourtsSortedNumerically(t *testing.T) {
	raw := `jQuery('#step-2').html('<div class=\"alert-success\"><\/div>` +
		`<p>מגרש: 10<\/p><a href=\"\/x?court_id=210&amp;duration=1.5&amp;end_time=20%3A30&amp;start_time=19%3A00\">a<\/a>` +
		`<p>מגרש: 2<\/p><a href=\"\/x?court_id=202&amp;duration=1.0&amp;end_time=20%3A00&amp;start_time=19%3A00\">b<\/a>` +
		`<p>מגרש: 10<\/p><a href=\"\/x?court_id=211&amp;duration=1.0&amp;end_time=20%3A00&amp;start_time=19%3A00\">c<\/a>` +
		`<p>מגרש: 9<\/p><a href=\"\/x?court_id=209&amp;duration=1.0&amp;end_time=20%3A00&amp;start_time=19+%3A00\">d<\/a>');`

	got := ParseAvailability(raw)
	require.Equal(t, availability.StatusAvailable, got.Status)
	assert.Equal(t, []int{2, 9, 10}, got.Courts)
	require.Len(t, got.Slots, 4)
	assert.Equal(t, 10, got.Slots[0].CourtNumber)
	assert.Equal(t, 1.5, got.Slots[0].Duration)
	assert.Equal(t, "20:30", got.Slots[0].EndTime)
	assert.Equal(t, "19 :00", got.Slots[3].StartTime)

	var numbers []int
	for _, s := range got.Slots {
		if !containsInt(numbers, s.CourtNumber) {
			numbers = append(numbers, s.CourtNumber)
		}
	}
	assert.ElementsMatch(t, numbers, got.Courts)
}

func TestParseCourtNumberAfterNonBreakingSpace(t *testing.T) {
	for _, gap := range []string{"&nbsp;", "&#160;", "\u00a0", " &nbsp;<b>"} {
		raw := `jQuery('#step-2').html('<div class=\"alert-success\"><\/div><span>מגרש:` + gap + `3<\/span>` +
			`<a href=\"\/b?court_id=101&amp;duration=1.0&amp;end_time=09%3A00&amp;start_time=08%3A00\">x<\/a>');`
		got := ParseAvailability(raw)
		assert.Equal(t, availability.StatusAvailable, got.Status, gap)
		assert.Equal(t, []int{3}, got.Courts, gap)
	}
}

func TestParseSkipsIncompleteLinks(t *testing.T) {
	raw := `jQuery('#step-2').html('<div class=\"success\"><\/div>` +
		`<p>מגרש: 4<\/p><a href=\"\/x?court_id=104&amp;end_time=20%3A00&amp;start_time=19%3A00\">no duration<\/a>` +
		`<p>מגרש: 5<\/p><a href=\"\/x?court_id=105&amp;duration=1.0&amp;end_time=20%3A00&amp;start_time=19%3A00\">ok<\/a>');`
	got := ParseAvailability(raw)
	require.Len(t, got.Slots, 1)
	assert.Equal(t, 105, got.Slots[0].CourtID)
	assert.Equal(t, []int{5}, got.Courts)
}

func TestClassifyPrecedence(t *testing.T) {
	both := `<div class="alert-success">x</div><div class="alert-danger">נסה מועד אחר</div>`
	assert.Equal(t, ClassAvailable, Classify(both))
	assert.Equal(t, ClassNoCourts, Classify(`<div>אין מגרשים פנויים</div>`))
	assert.Equal(t, ClassUnknown, Classify(`<div>hello</div>`))
	assert.Equal(t, "available", ClassAvailable.String())
}

func TestSuggestedTimesDedup(t *testing.T) {
	html := `<h3>10:00-11:00</h3><h4> 8:30 – 9:30 </h4><h3>10:00-11:00</h3><h3>12:00-13:00</h3>`
	assert.Equal(t, []string{"10:00", "08:30", "12:00"}, SuggestedTimes(html))
	assert.Nil(t, SuggestedTimes(`<h3>no times</h3>`))
}

func TestUnwrapScript(t *testing.T) {
	assert.Equal(t, `<a href="/x">it's</a>`+"\n", UnwrapScript(`jQuery('#r').html('<a href=\"\/x\">it\'s<\/a>\n');`))
	assert.Equal(t, `<b>"q"</b>`, UnwrapScript(`jQuery("#r").html("<b>\"q\"<\/b>");`))
	assert.Equal(t, "", UnwrapScript(`$('#r').show();`))
}

func TestTimeValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain", `<option value="08:00">08:00</option><option value="08:30">08:30</option>`, []string{"08:00", "08:30"}},
		{"escaped", `$('#t').html('<option value=\"07:00\">7<\/option><option value=\"7:30\">');`, []string{"07:00", "07:30"}},
		{"double escaped", `"<option value=\\\"21:00\\\">21:00</option><option value=\\\"21:00\\\">"`, []string{"21:00"}},
		{"none", `<select></select>`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeValues(tt.raw))
		})
	}
}

func TestTimeValuesFirstMatchingPatternWins(t *testing.T) {
	raw := `<option value="09:00"></option> value=\"10:00\"`
	assert.Equal(t, []string{"09:00"}, TimeValues(raw))
}

func TestCSRFToken(t *testing.T) {
	assert.Equal(t, "meta-token==", CSRFToken(`<html><head><meta name="csrf-token" content="meta-token=="></head></html>`))
	assert.Equal(t, "input+token", CSRFToken(`<form><input type="hidden" name="authenticity_token" value="input+token"></form>`))
	assert.Equal(t, "inline/tok", CSRFToken(`$('#f').html('<input type=\"hidden\" name=\"authenticity_token\" value=\"inline/tok\">');`))
	assert.Equal(t, "", CSRFToken(`<html><body>nothing</body></html>`))
}

func TestLoginRedirectPage(t *testing.T) {
	l := NewLoginRedirect("/users/sign_in", "", "/users/login")
	require.Len(t, l.scripts, 2)

	assert.True(t, l.Page(`<html><body>You are being <a href="https://courts.example/users/sign_in">redirected</a>.</body></html>`))
	assert.True(t, l.Page(`<script>window.location.href = "/users/sign_in";</script>`))
	assert.True(t, l.Page(`<form action="/users/login" method="post"></form>`))
	assert.False(t, l.Page(`<html><body><a href="/users/sign_out">logout</a></body></html>`))
	assert.False(t, NewLoginRedirect().Page(`<form action="/users/login"></form>`))
}

func TestLoginRedirectLocation(t *testing.T) {
	l := NewLoginRedirect("/users/sign_in", "/users/login")
	assert.True(t, l.Location("https://courts.example/users/sign_in"))
	assert.False(t, l.Location("https://courts.example/self_services/court_invitation"))
	assert.False(t, l.Location(""))
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

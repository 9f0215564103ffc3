package roster

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrcheckin-backend/models"
)

func TestParse(t *testing.T) {
	input := "\ufeffNom, Email ,Telephone,Type\n" +
		"Ada Lovelace,ADA@example.com,+44 20 7946 0000,VIP\n" +
		",ghost@example.com,,\n" +
		"Bob,,,\n" +
		"Cy,cy@example.com,,staff\n"

	drafts, errs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, drafts, 3)

	assert.Equal(t, Draft{Line: 2, Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0000", InvitationType: models.InvitationVIP}, drafts[0])
	assert.Equal(t, models.InvitationStandard, drafts[1].InvitationType)
	assert.Equal(t, 4, drafts[1].Line)
	assert.Equal(t, models.InvitationStaff, drafts[2].InvitationType)
	assert.Equal(t, []string{"ada@example.com", "cy@example.com"}, Emails(drafts))
}

func TestParse_LineErrors(t *testing.T) {
	input := "name,email,phone,invitationType\n" +
		"Ada,not-an-email,12,Gold\n" +
		"Bob,bob@example.com,,\n" +
		"Bobby,BOB@example.com,,\n"

	drafts, errs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Len(t, errs, 2)

	assert.Equal(t, 2, errs[0].Line)
	assert.Equal(t, "Ada", errs[0].Name)
	assert.Len(t, errs[0].Errors, 3)
	assert.Equal(t, LineError{Line: 4, Name: "Bobby", Errors: []string{"email already used on line 3"}}, errs[1])
}

func TestParse_Failures(t *testing.T) {
	_, _, err := Parse(strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmpty)

	_, _, err = Parse(strings.NewReader("name,email\n,\n"))
	require.ErrorIs(t, err, ErrEmpty)

	_, _, err = Parse(strings.NewReader("email,phone\na@example.com,\n"))
	require.ErrorIs(t, err, ErrMissingNameColumn)

	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i <= MaxImportRows; i++ {
		b.WriteString("guest\n")
	}
	_, _, err = Parse(strings.NewReader(b.String()))
	require.ErrorIs(t, err, ErrTooManyRows)
}

func TestNormalize(t *testing.T) {
	d, problems := Normalize("  "+strings.Repeat("é", 120)+" ", "", "", "")
	assert.Empty(t, problems)
	assert.Equal(t, 100, len([]rune(d.Name)))

	_, problems = Normalize("", "", "", "")
	assert.Equal(t, []string{"name is required"}, problems)
}

func TestDraftGuest(t *testing.T) {
	eventID := uuid.New()
	g := Draft{Name: "Ada", Email: "ada@example.com", InvitationType: models.InvitationVIP}.Guest(eventID)
	assert.Equal(t, eventID, g.EventID)
	require.NotNil(t, g.Email)
	assert.Equal(t, "ada@example.com", *g.Email)
	assert.Nil(t, g.Phone)
}

func TestRegisterValidations(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidations(v))
	assert.NoError(t, v.Var("+33 (0)6 12-34-56", "phone"))
	assert.Error(t, v.Var("call me", "phone"))
}

package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createUserForm struct {
	Username string `validate:"required,username"`
	Password string `validate:"required,password"`
}

func TestValidateRequest_PassesWellFormedInput(t *testing.T) {
	fields := ValidateRequest(createUserForm{
		Username: "alice-ops",
		Password: "Str0ng!pass",
	})
	assert.Nil(t, fields)
}

func TestValidateRequest_ReportsEveryFailingField(t *testing.T) {
	fields := ValidateRequest(createUserForm{
		Username: "a",
		Password: "weak",
	})
	require.NotNil(t, fields)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "password")
}

func TestValidateRequest_RequiredFields(t *testing.T) {
	fields := ValidateRequest(createUserForm{})
	require.NotNil(t, fields)
	assert.Equal(t, "username is required", fields["username"])
	assert.Equal(t, "password is required", fields["password"])
}

func TestPasswordRule(t *testing.T) {
	cases := []struct {
		password string
		valid    bool
	}{
		{"Str0ng!pass", true},
		{"An0ther#Good1", true},
		{"short1!", false},          // under 8 chars
		{"alllowercase1!", false},   // no uppercase
		{"ALLUPPERCASE1!", false},   // no lowercase
		{"NoNumbersHere!", false},   // no digit
		{"NoSpecials123ab", false},  // no special character
	}
	for _, tc := range cases {
		fields := ValidateRequest(createUserForm{Username: "valid-user", Password: tc.password})
		if tc.valid {
			assert.Nil(t, fields, "password %q should pass", tc.password)
		} else {
			require.NotNil(t, fields, "password %q should fail", tc.password)
			assert.Contains(t, fields, "password")
		}
	}
}

func TestUsernameRule(t *testing.T) {
	cases := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"Alice_01", true},
		{"ops-team-2", true},
		{"ab", false},                   // too short
		{"has space", false},            // whitespace
		{"semi;colon", false},           // punctuation outside the allowed set
		{strings.Repeat("a", 51), false}, // too long
	}
	for _, tc := range cases {
		fields := ValidateRequest(createUserForm{Username: tc.username, Password: "Str0ng!pass"})
		if tc.valid {
			assert.Nil(t, fields, "username %q should pass", tc.username)
		} else {
			require.NotNil(t, fields, "username %q should fail", tc.username)
			assert.Contains(t, fields, "username")
		}
	}
}

package cnpj

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	v := New()

	valid := []string{
		"11444777000161",
		"11.444.777/0001-61",
		"11222333000181",
		"00000000000191",
	}
	for _, id := range valid {
		assert.True(t, v.Validate(id), id)
	}

	invalid := []string{
		"",
		"123",
		"11444777000162",   // wrong check digit
		"11444777000151",   // wrong first check digit
		"11111111111111",   // repeated digits
		"114447770001610",  // too long
		"abcdefghijklmn",
	}
	for _, id := range invalid {
		assert.False(t, v.Validate(id), id)
	}
}

func TestExtractDigits(t *testing.T) {
	v := New()
	assert.Equal(t, "11444777000161", v.ExtractDigits("11.444.777/0001-61"))
	assert.Equal(t, "", v.ExtractDigits("no digits"))
}

func TestFormat(t *testing.T) {
	v := New()
	assert.Equal(t, "11.444.777/0001-61", v.Format("11444777000161"))
	assert.Equal(t, "11.444.777/0001-61", v.Format("11.444.777/0001-61"))
	// Not 14 digits: passed through untouched.
	assert.Equal(t, "123", v.Format("123"))
}

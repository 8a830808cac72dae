package iocli

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Проверяем что NewStdio возвращает валидный объект
func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestPrintlnAndPrintf(t *testing.T) {
	var out bytes.Buffer
	s := NewStreams(strings.NewReader(""), &out)

	s.Println("hello", "world")
	s.Printf("test %d %s\n", 1, "abc")
	_, err := s.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

// Несколько чтений подряд не теряют буферизованный ввод
func TestReadInput_Sequential(t *testing.T) {
	var out bytes.Buffer
	s := NewStreams(strings.NewReader("dr.house\n  st-mary  \nlast"), &out)

	first, err := s.ReadInput("Username: ")
	require.NoError(t, err)
	assert.Equal(t, "dr.house", first)

	second, err := s.ReadInput("Hospital: ")
	require.NoError(t, err)
	assert.Equal(t, "st-mary", second)

	third, err := s.ReadInput("Last: ")
	require.NoError(t, err)
	assert.Equal(t, "last", third)

	_, err = s.ReadInput("More: ")
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, "Username: Hospital: Last: More: ", out.String())
}

// Не терминал: пароль читается как обычная строка
func TestReadPassword_NotTerminal(t *testing.T) {
	var out bytes.Buffer
	s := NewStreams(strings.NewReader("correct-horse-battery\n"), &out)

	password, err := s.ReadPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "correct-horse-battery", password)
	assert.Equal(t, "Password: ", out.String())
}

// Тест ReadInput через pipe вместо os.Stdin
func TestReadInput_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	go func() {
		_, _ = w.Write([]byte("user input\n"))
		_ = w.Close()
	}()
	defer func() { _ = r.Close() }()

	var out bytes.Buffer
	stdio := NewStreams(r, &out)
	result, err := stdio.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", result)
}

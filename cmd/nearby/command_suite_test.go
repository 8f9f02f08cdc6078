package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs commands through a fresh root and captures their output.
type CommandTestSuite struct {
	suite.Suite
	noColor bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.noColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
}

// ExecuteCommand runs the root command with args, returns stdout and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	root := newRootCmd()
	return s.execute(root, args...)
}

func (s *CommandTestSuite) execute(root *cobra.Command, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// WriteConfig writes a config file into a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "nearby.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "config file MUST be written")
	return path
}

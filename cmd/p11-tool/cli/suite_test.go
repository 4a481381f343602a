package cli

import (
	"bytes"

	"github.com/alecthomas/kong"
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/internal/softtoken"
	"github.com/effective-security/x/ctl"
	"github.com/stretchr/testify/suite"
)

const (
	userPin = "1234"
	soPin   = "12345678"
)

type testSuite struct {
	suite.Suite

	ctl   *Cli
	token *softtoken.Library
	// Out is the outpub buffer
	Out bytes.Buffer
}

func (s *testSuite) SetupTest() {
	cat := ckabi.Aligned()
	s.token = softtoken.New(cat)
	s.Out.Reset()

	s.ctl = &Cli{}
	s.ctl.WithErrWriter(&s.Out).
		WithWriter(&s.Out).
		WithModule(cryptoki.Bind(s.token, cat))

	parser, err := kong.New(s.ctl,
		kong.Name("p11-tool"),
		kong.Description("CLI tool for PKCS#11 tokens"),
		kong.Writers(&s.Out, &s.Out),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{})
	if err != nil {
		s.FailNow("unexpected error constructing Kong: %+v", err)
	}

	_, err = parser.Parse([]string{"--log-level=error"})
	if err != nil {
		s.FailNow("unexpected error parsing: %+v", err)
	}
}

func (s *testSuite) TearDownTest() {
	s.NoError(s.ctl.Close())
	s.True(s.token.Closed() || s.token.Calls("C_Initialize") == 0)
}

// HasText is a helper method to assert that the out stream contains the supplied
// text somewhere
func (s *testSuite) HasText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.Contains(outStr, t)
	}
}

// HasNoText is a helper method to assert that the out stream does not contain the supplied
// text anywhere
func (s *testSuite) HasNoText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.NotContains(outStr, t)
	}
}

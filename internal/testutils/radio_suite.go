package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// PeripheralAddress is the address of the default fake peripheral.
const PeripheralAddress = "AA:BB:CC:DD:EE:FF"

// FakeRadioSuite provides a fresh fake radio with one dialable peripheral
// per test.
//
//	type ManagerSuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func (s *ManagerSuite) TestSend() {
//	    s.Peripheral.SetWriteDelay(10 * time.Millisecond)
//	    // build the component under test from s.Radio
//	}
type FakeRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration

	Radio      *FakeRadio
	Peripheral *FakePeripheral
}

// SetupSuite is called once before all tests in the suite.
func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.TestTimeout == 0 {
		s.TestTimeout = 5 * time.Second
	}
}

// SetupTest builds a radio advertising PeripheralAddress as "Tangible".
func (s *FakeRadioSuite) SetupTest() {
	s.Radio = NewFakeRadio()
	s.Peripheral = NewFakePeripheral(PeripheralAddress)
	s.Radio.AddPeripheral(s.Peripheral, "Tangible")
}

// TearDownTest drops any link left open.
func (s *FakeRadioSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.Peripheral.Drop()
	}
	s.Radio, s.Peripheral = nil, nil
}

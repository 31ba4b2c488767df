package goble_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/tangible/internal/device"
	goble "github.com/srg/tangible/internal/device/go-ble"
	blemocks "github.com/srg/tangible/internal/testutils/mocks/goble"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const address = "AA:BB:CC:DD:EE:FF"

func uartProfile() (*ble.Profile, *ble.Characteristic, *ble.Characteristic) {
	rx := &ble.Characteristic{UUID: ble.MustParse("6E400002-B5A3-F393-E0A9-E50E24DCCA9E")}
	tx := &ble.Characteristic{UUID: ble.MustParse("6E400003-B5A3-F393-E0A9-E50E24DCCA9E")}
	return &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0x180A)},
		{
			UUID:            ble.MustParse("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"),
			Characteristics: []*ble.Characteristic{rx, tx},
		},
	}}, rx, tx
}

type RadioTestSuite struct {
	suite.Suite
	originalFactory func() (ble.Device, error)

	dev *blemocks.MockDevice
}

func (suite *RadioTestSuite) SetupSuite() {
	suite.originalFactory = goble.DeviceFactory
}

func (suite *RadioTestSuite) TearDownSuite() {
	goble.DeviceFactory = suite.originalFactory
}

func (suite *RadioTestSuite) SetupTest() {
	suite.dev = &blemocks.MockDevice{}
	goble.DeviceFactory = func() (ble.Device, error) { return suite.dev, nil }
}

func (suite *RadioTestSuite) TestScan_NormalizesErrors() {
	tests := []struct {
		name     string
		mockErr  error
		expectIs error
	}{
		{name: "darwin bluetooth off", mockErr: fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), expectIs: device.ErrBluetoothOff},
		{name: "permission", mockErr: fmt.Errorf("can't init hci: operation not permitted"), expectIs: device.ErrPermission},
		{name: "context canceled passes through", mockErr: context.Canceled, expectIs: context.Canceled},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			dev := &blemocks.MockDevice{}
			dev.On("Scan", mock.Anything, false, mock.Anything).Return(tt.mockErr)
			goble.DeviceFactory = func() (ble.Device, error) { return dev, nil }

			err := goble.NewRadio(nil).Scan(context.Background(), false, func(device.Advertisement) {})

			suite.ErrorIs(err, tt.expectIs)
		})
	}
}

func (suite *RadioTestSuite) TestScan_AdaptsAdvertisements() {
	adv := &blemocks.MockAdvertisement{}
	adv.On("Addr").Return(ble.NewAddr(address))
	adv.On("LocalName").Return("Tangible")
	adv.On("RSSI").Return(-42)

	suite.dev.On("Scan", mock.Anything, true, mock.MatchedBy(func(h ble.AdvHandler) bool {
		h(adv)
		return true
	})).Return(nil)

	var got []device.Advertisement
	err := goble.NewRadio(nil).Scan(context.Background(), true, func(a device.Advertisement) {
		got = append(got, a)
	})

	suite.Require().NoError(err)
	suite.Require().Len(got, 1)
	suite.True(strings.EqualFold(address, got[0].Addr()), got[0].Addr())
	suite.Equal("Tangible", got[0].LocalName())
	suite.Equal(-42, got[0].RSSI())
}

func (suite *RadioTestSuite) TestAdvertisement_NilAddr() {
	adv := &blemocks.MockAdvertisement{}
	adv.On("Addr").Return(nil)

	suite.Empty(goble.NewBLEAdvertisement(adv).Addr())
}

func (suite *RadioTestSuite) TestDeviceFactoryFailureIsRetried() {
	calls := 0
	goble.DeviceFactory = func() (ble.Device, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("can't init hci: operation not permitted")
		}
		return suite.dev, nil
	}
	suite.dev.On("Scan", mock.Anything, false, mock.Anything).Return(nil)
	radio := goble.NewRadio(nil)

	err := radio.Scan(context.Background(), false, func(device.Advertisement) {})
	suite.ErrorIs(err, device.ErrPermission)

	suite.NoError(radio.Scan(context.Background(), false, func(device.Advertisement) {}))
	suite.Equal(2, calls)
}

func (suite *RadioTestSuite) TestDial_EmptyAddress() {
	_, err := goble.NewRadio(nil).Dial(context.Background(), "  ")
	suite.ErrorContains(err, "device address is empty")
	suite.dev.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
}

func (suite *RadioTestSuite) TestDial_Failure() {
	suite.dev.On("Dial", mock.Anything, mock.Anything).Return(nil, errors.New("device already connected"))

	_, err := goble.NewRadio(nil).Dial(context.Background(), address)

	suite.ErrorIs(err, device.ErrAlreadyConnected)
	suite.ErrorContains(err, address)
}

func (suite *RadioTestSuite) TestDial_MissingUARTService() {
	client := &blemocks.MockClient{}
	client.On("DiscoverProfile", true).Return(&ble.Profile{Services: []*ble.Service{{UUID: ble.UUID16(0x180F)}}}, nil)
	client.On("CancelConnection").Return(nil).Once()
	suite.dev.On("Dial", mock.Anything, ble.NewAddr(address)).Return(client, nil)

	_, err := goble.NewRadio(nil).Dial(context.Background(), address)

	suite.ErrorIs(err, device.ErrServiceNotFound)
	client.AssertExpectations(suite.T())
}

func (suite *RadioTestSuite) TestDial_MissingTXCharacteristic() {
	profile, rx, _ := uartProfile()
	profile.Services[1].Characteristics = []*ble.Characteristic{rx}

	client := &blemocks.MockClient{}
	client.On("DiscoverProfile", true).Return(profile, nil)
	client.On("CancelConnection").Return(nil).Once()
	suite.dev.On("Dial", mock.Anything, mock.Anything).Return(client, nil)

	_, err := goble.NewRadio(nil).Dial(context.Background(), address)

	suite.ErrorIs(err, device.ErrServiceNotFound)
	suite.ErrorContains(err, "rx=true tx=false")
}

func (suite *RadioTestSuite) dialLink(client *blemocks.MockClient, disconnected chan struct{}) device.Link {
	profile, _, _ := uartProfile()
	client.On("DiscoverProfile", true).Return(profile, nil)
	client.On("Disconnected").Return((<-chan struct{})(disconnected))
	suite.dev.On("Dial", mock.Anything, mock.Anything).Return(client, nil)

	link, err := goble.NewRadio(nil).Dial(context.Background(), address)
	suite.Require().NoError(err)
	suite.Equal(address, link.Address())
	// Read before Dial returns, never from the monitor goroutine.
	client.AssertNumberOfCalls(suite.T(), "Disconnected", 1)
	return link
}

func (suite *RadioTestSuite) TestLink_WriteChunksFrames() {
	_, rx, _ := uartProfile()
	client := &blemocks.MockClient{}
	var chunks []int
	client.On("WriteCharacteristic", mock.MatchedBy(func(c *ble.Characteristic) bool {
		return c.UUID.Equal(rx.UUID)
	}), mock.Anything, true).Run(func(args mock.Arguments) {
		chunks = append(chunks, len(args.Get(1).([]byte)))
	}).Return(nil)
	link := suite.dialLink(client, make(chan struct{}))

	frame := make([]byte, goble.DefaultBLEWriteChunkSize+5)
	suite.Require().NoError(link.Write(frame, false))

	suite.Equal([]int{goble.DefaultBLEWriteChunkSize, 5}, chunks)
}

func (suite *RadioTestSuite) TestLink_WriteWithResponse() {
	client := &blemocks.MockClient{}
	client.On("WriteCharacteristic", mock.Anything, []byte("!FLUP\xa7"), false).Return(nil).Once()
	link := suite.dialLink(client, make(chan struct{}))

	suite.NoError(link.Write([]byte("!FLUP\xa7"), true))
	client.AssertExpectations(suite.T())
}

func (suite *RadioTestSuite) TestLink_WriteErrorNormalized() {
	client := &blemocks.MockClient{}
	client.On("WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("device not connected"))
	link := suite.dialLink(client, make(chan struct{}))

	suite.ErrorIs(link.Write([]byte("!FLUP\xa7"), false), device.ErrNotConnected)
}

func (suite *RadioTestSuite) TestLink_SubscribeDeliversNotifications() {
	_, _, tx := uartProfile()
	client := &blemocks.MockClient{}
	var notify ble.NotificationHandler
	client.On("Subscribe", mock.MatchedBy(func(c *ble.Characteristic) bool {
		return c.UUID.Equal(tx.UUID)
	}), false, mock.Anything).Run(func(args mock.Arguments) {
		notify = args.Get(2).(ble.NotificationHandler)
	}).Return(nil)
	link := suite.dialLink(client, make(chan struct{}))

	var got []byte
	suite.Require().NoError(link.Subscribe(func(data []byte) { got = data }))
	suite.Require().NotNil(notify)

	notify([]byte("OK"))
	suite.Equal([]byte("OK"), got)
}

func (suite *RadioTestSuite) TestLink_Close() {
	client := &blemocks.MockClient{}
	client.On("Subscribe", mock.Anything, false, mock.Anything).Return(nil)
	client.On("Unsubscribe", mock.Anything, false).Return(nil).Once()
	client.On("CancelConnection").Return(nil).Once()
	link := suite.dialLink(client, make(chan struct{}))
	suite.Require().NoError(link.Subscribe(func([]byte) {}))

	suite.NoError(link.Close())
	suite.NoError(link.Close())

	select {
	case <-link.Disconnected():
	default:
		suite.Fail("Disconnected must be closed after Close")
	}
	suite.ErrorIs(link.Write([]byte("!FLUP\xa7"), false), device.ErrLinkDropped)
	client.AssertExpectations(suite.T())
}

func (suite *RadioTestSuite) TestLink_ObservesStackDisconnect() {
	disconnected := make(chan struct{})
	link := suite.dialLink(&blemocks.MockClient{}, disconnected)

	close(disconnected)

	select {
	case <-link.Disconnected():
	case <-time.After(time.Second):
		suite.Fail("link did not observe the stack disconnect")
	}
}

func TestRadioTestSuite(t *testing.T) {
	suite.Run(t, new(RadioTestSuite))
}

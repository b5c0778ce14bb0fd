package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"

// GpIO drives Raspberry Pi pins through /dev/gpiomem.
type GpIO struct {
	inputs  []*GpInput
	outputs []*GpOutput

	PullUpInputs  bool `yaml:"pull_up_inputs"`
	InvertInputs  bool `yaml:"invert_inputs"`
	InvertOutputs bool `yaml:"invert_outputs"`

	isReady bool
}

type GpInput struct {
	pin    uint8
	invert bool
}

type GpOutput struct {
	pin    uint8
	invert bool
}

func (gpi *GpInput) GetState() (state bool, err error) {
	if gpi.invert {
		state = rpio.Pin(gpi.pin).Read() == rpio.Low
	} else {
		state = rpio.Pin(gpi.pin).Read() == rpio.High
	}

	return
}

func (gpo *GpOutput) Set(state bool) error {
	if gpo.invert {
		state = !state
	}
	if state {
		rpio.Pin(gpo.pin).High()
	} else {
		rpio.Pin(gpo.pin).Low()
	}

	return nil
}

func (gpo *GpOutput) GetState() (state bool, err error) {
	if gpo.invert {
		state = rpio.Pin(gpo.pin).Read() == rpio.Low
	} else {
		state = rpio.Pin(gpo.pin).Read() == rpio.High
	}

	return
}

func checkPinRange(pins ...uint16) error {
	for _, pin := range pins {
		if pin > 255 {
			return errors.Errorf("pin %d out of range (gpio takes uint8 pin)", pin)
		}
	}
	return nil
}

func (gp *GpIO) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	err := checkPinRange(append(append([]uint16{}, inputs...), outputs...)...)
	if err != nil {
		return err
	}

	err = rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup gpio driver for pins: %v, %v; ", inputs, outputs)
	}

	gp.inputs = nil
	gp.outputs = nil

	for _, inPin := range inputs {
		pin := rpio.Pin(inPin)
		pin.Input()
		if gp.PullUpInputs {
			pin.PullUp()
		} else {
			pin.PullOff()
		}
		gp.inputs = append(gp.inputs, &GpInput{pin: uint8(inPin), invert: gp.InvertInputs})
	}

	for _, outPin := range outputs {
		pin := rpio.Pin(outPin)
		pin.Output()
		gp.outputs = append(gp.outputs, &GpOutput{pin: uint8(outPin), invert: gp.InvertOutputs})
	}

	gp.isReady = true
	return nil
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) IsReady() bool {
	return gp.isReady
}

func (gp *GpIO) Close() error {
	if !gp.isReady {
		return nil
	}
	gp.isReady = false
	for _, output := range gp.outputs {
		output.Set(false)
	}
	return rpio.Close()
}

func (gp *GpIO) GetInput(id uint16) (DigitalInput, error) {
	if err := checkPinRange(id); err != nil {
		return nil, err
	}
	for _, in := range gp.inputs {
		if in.pin == uint8(id) {
			return in, nil
		}
	}

	return nil, errors.Errorf("GpIO Input (id: %d) not found", id)
}

func (gp *GpIO) GetOutput(id uint16) (DigitalOutput, error) {
	if err := checkPinRange(id); err != nil {
		return nil, err
	}
	for _, out := range gp.outputs {
		if out.pin == uint8(id) {
			return out, nil
		}
	}

	return nil, errors.Errorf("GpIO Output (id: %d) not found", id)
}

func (gp *GpIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	for _, input := range gp.inputs {
		inputs = append(inputs, uint16(input.pin))
	}

	for _, output := range gp.outputs {
		outputs = append(outputs, uint16(output.pin))
	}

	return
}

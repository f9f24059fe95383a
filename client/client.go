package client

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/go-simplehttp"
	"github.com/smartfarm/farmwatch"
)

type Client struct {
	*simplehttp.SimpleHttp
}

func New(host string, logger *logrus.Logger) *Client {

	backend := simplehttp.New(host, logger)

	client := Client{&backend}

	return &client
}

func (client *Client) HouseList() ([]farmwatch.House, error) {

	data, err := client.Get("/house")
	if err != nil {
		return nil, err
	}

	var houses []farmwatch.House

	if err := json.Unmarshal([]byte(data), &houses); err != nil {
		return nil, err
	}

	return houses, nil
}

func (client *Client) HouseFind(house_id uint64) (*farmwatch.House, error) {

	url := fmt.Sprintf("/house/%d", house_id)

	data, err := client.Get(url)
	if err != nil {
		return nil, err
	}

	var house farmwatch.House

	if err := json.Unmarshal([]byte(data), &house); err != nil {
		return nil, err
	}

	return &house, nil
}

func (client *Client) SensorOverview(house_id uint64) ([]farmwatch.SensorOverview, error) {

	url := fmt.Sprintf("/sensor/%d", house_id)

	data, err := client.Get(url)
	if err != nil {
		return nil, err
	}

	var sensors []farmwatch.SensorOverview

	if err := json.Unmarshal([]byte(data), &sensors); err != nil {
		return nil, err
	}

	return sensors, nil
}

func (client *Client) SensorDetail(house_id uint64, device_id uint64) (*farmwatch.SensorDetail, error) {

	url := fmt.Sprintf("/detail/%d/%d", house_id, device_id)

	data, err := client.Get(url)
	if err != nil {
		return nil, err
	}

	var detail farmwatch.SensorDetail

	if err := json.Unmarshal([]byte(data), &detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

func (client *Client) AlertList(house_id uint64) ([]farmwatch.AlertEntry, error) {

	url := fmt.Sprintf("/alert/%d", house_id)

	data, err := client.Get(url)
	if err != nil {
		return nil, err
	}

	var alerts []farmwatch.AlertEntry

	if err := json.Unmarshal([]byte(data), &alerts); err != nil {
		return nil, err
	}

	return alerts, nil
}

func (client *Client) ActuatorList(house_id uint64) ([]farmwatch.ActuatorStatus, error) {

	url := fmt.Sprintf("/actuator/%d", house_id)

	data, err := client.Get(url)
	if err != nil {
		return nil, err
	}

	var actuators []farmwatch.ActuatorStatus

	if err := json.Unmarshal([]byte(data), &actuators); err != nil {
		return nil, err
	}

	return actuators, nil
}

func (client *Client) ActuatorControl(actuator_id uint64, command string) (*farmwatch.DispatchResult, error) {

	request := struct {
		ActuatorId uint64 `json:"actuatorId"`
		Command    string `json:"command"`
	}{actuator_id, command}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	data, err := client.Post("/actuator/control", string(body))
	if err != nil {
		return nil, err
	}

	var result farmwatch.DispatchResult

	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

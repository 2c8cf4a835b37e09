package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadQualify = "leads.qualify"

const TaskLeadRespond = "leads.respond"

const TaskLeadCRMSync = "leads.crm_sync"

type LeadQualifyPayload struct {
	LeadID   string `json:"leadId"`
	TenantID string `json:"tenantId"`
}

type LeadRespondPayload struct {
	LeadID   string `json:"leadId"`
	TenantID string `json:"tenantId"`
}

type LeadCRMSyncPayload struct {
	LeadID   string `json:"leadId"`
	TenantID string `json:"tenantId"`
}

func NewLeadQualifyTask(payload LeadQualifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadQualify, data), nil
}

func ParseLeadQualifyPayload(task *asynq.Task) (LeadQualifyPayload, error) {
	var payload LeadQualifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadQualifyPayload{}, err
	}
	return payload, nil
}

func NewLeadRespondTask(payload LeadRespondPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadRespond, data), nil
}

func ParseLeadRespondPayload(task *asynq.Task) (LeadRespondPayload, error) {
	var payload LeadRespondPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadRespondPayload{}, err
	}
	return payload, nil
}

func NewLeadCRMSyncTask(payload LeadCRMSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadCRMSync, data), nil
}

func ParseLeadCRMSyncPayload(task *asynq.Task) (LeadCRMSyncPayload, error) {
	var payload LeadCRMSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadCRMSyncPayload{}, err
	}
	return payload, nil
}

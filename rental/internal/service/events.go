package service

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

type Enqueuer interface {
	Enqueue(topic string, v any) error
}

func NewEnqueuer(producer sarama.SyncProducer) Enqueuer {
	return &enqueuerImpl{
		producer: producer,
	}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
}

func (q *enqueuerImpl) Enqueue(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	if _, _, err = q.producer.SendMessage(msg); err != nil {
		return err
	}
	return nil
}

// emit publishes a rental event, best effort. Event delivery never fails
// the booking itself.
func (s *Service) emit(event model.EventType, res model.Reservation) {
	if s.queue == nil {
		return
	}
	e := model.RentalEvent{
		Type:           event,
		ReservationUid: res.ReservationUid,
		CarUid:         res.CarUid,
		RenterUid:      res.RenterUid,
		Status:         res.Status,
		At:             s.now(),
	}
	if err := s.queue.Enqueue(s.topic, e); err != nil {
		s.log.Warn("enqueue rental event", zap.String("type", string(event)), zap.Error(err))
	}
}

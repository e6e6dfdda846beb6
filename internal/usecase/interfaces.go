package usecase

import "context"

type DataProducer interface {
	// Produce 发送数据到指定 Topic; key 决定分区 (机器人名称)
	Produce(ctx context.Context, topic string, key string, data interface{}) error
}

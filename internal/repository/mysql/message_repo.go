package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/azureiya85/YouApp-Test/internal/datamodels/message"
)

type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(db *gorm.DB) message.Repository {
	return &messageRepo{db: db}
}

// Insert 落库时统一赋服务端时间戳，状态固定为 sent
func (r *messageRepo) Insert(ctx context.Context, m *message.Message) error {
	m.ID = 0
	m.Timestamp = time.Now().UTC()
	m.Status = message.StatusSent
	return r.db.WithContext(ctx).Create(m).Error
}

// FindConversation 双向查询两人之间的消息。时间戳相同的按自增 ID
// 排序，等价于插入顺序。没有历史时返回空切片而不是错误。
func (r *messageRepo) FindConversation(ctx context.Context, userA, userB string) ([]*message.Message, error) {
	list := make([]*message.Message, 0)
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order("timestamp ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// MarkIncomingAsRead 在一个事务里先取出所有待置读的消息 ID 再批量更新，
// 保证返回的 ID 集合与实际变更完全一致。已经是 read 的不会被碰到，
// 所以连续调用两次第二次必然是零变更。
func (r *messageRepo) MarkIncomingAsRead(ctx context.Context, fromUser, toUser string) (int64, []uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&message.Message{}).
			Where("sender_id = ? AND recipient_id = ? AND status = ?", fromUser, toUser, message.StatusSent).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&message.Message{}).
			Where("id IN ?", ids).
			Update("status", message.StatusRead).Error
	})
	if err != nil {
		return 0, nil, err
	}
	return int64(len(ids)), ids, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id uint64) (*message.Message, error) {
	var m message.Message
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) Update(ctx context.Context, m *message.Message) error {
	return r.db.WithContext(ctx).Save(m).Error
}

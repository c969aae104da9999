package identity

// 身份提供方的进程内抽象：对应一个全局的、懒初始化的"钱包"会话。
// 业务侧只消费不透明的账号名；账号为空即匿名。

import (
	"fmt"
	"sync"
)

// Anonymous 匿名身份（未签入）。
const Anonymous = ""

// Listener 身份变更回调。每次签入/签出都会触发，
// 调用方据此重新执行作者认证解析。
type Listener func(accountID string)

// Session 进程级会话对象。由外部构造并注入，核心不自己创建。
type Session struct {
	mu        sync.RWMutex
	accountID string
	started   bool
	listeners []Listener
}

// NewSession 创建未启动的会话。
func NewSession() *Session {
	return &Session{}
}

// StartUp 启动会话并注册初始监听；重复启动报错。
// initial 为恢复的账号（可为 Anonymous）。
func (s *Session) StartUp(initial string, l Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.accountID = initial
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
	listeners := append([]Listener(nil), s.listeners...)
	account := s.accountID
	s.mu.Unlock()

	notify(listeners, account)
	return nil
}

// Shutdown 结束会话，清空账号与监听。
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.started = false
	s.accountID = Anonymous
	s.listeners = nil
	s.mu.Unlock()
}

// SignIn 写入签入账号并广播变更。
func (s *Session) SignIn(accountID string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("session not started")
	}
	s.accountID = accountID
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	notify(listeners, accountID)
	return nil
}

// SignOut 退出登录并广播变更。
func (s *Session) SignOut() {
	s.mu.Lock()
	s.accountID = Anonymous
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	notify(listeners, Anonymous)
}

// OnChange 追加身份变更监听。
func (s *Session) OnChange(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// AccountID 当前签入账号；匿名返回空串。
func (s *Session) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

// SignedIn 是否已签入。
func (s *Session) SignedIn() bool {
	return s.AccountID() != Anonymous
}

func notify(listeners []Listener, account string) {
	for _, l := range listeners {
		l(account)
	}
}

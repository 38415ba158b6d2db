package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/genesis/pkg/store"
)

type titleRequest struct {
	Title string `json:"title"`
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) fail(c *gin.Context, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": message})
		return
	}
	s.log.Error(message, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

func (s *Server) listChats(c *gin.Context) {
	chats, err := s.store.ListChats(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Error al obtener chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (s *Server) createChat(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	chat, err := s.store.CreateChat(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err, "Error al crear chat")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

func (s *Server) getChat(c *gin.Context) {
	chat, err := s.store.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Chat no encontrado")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (s *Server) updateChat(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	chat, err := s.store.UpdateChatTitle(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		s.fail(c, err, "Error al actualizar chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (s *Server) deleteChat(c *gin.Context) {
	if err := s.store.DeleteChat(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Error al eliminar chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat eliminado"})
}

func (s *Server) pinChat(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	chat, err := s.store.SetPinned(c.Request.Context(), c.Param("id"), req.Pinned)
	if err != nil {
		s.fail(c, err, "Error al fijar/desfijar chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (s *Server) createMessage(c *gin.Context) {
	var req store.NewMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Role != "user" && req.Role != "assistant" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
		return
	}
	msg, err := s.store.CreateMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err, "Error al crear mensaje")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (s *Server) listMessages(c *gin.Context) {
	messages, err := s.store.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Error al obtener mensajes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) createCode(c *gin.Context) {
	var req store.NewCode
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	code, err := s.store.CreateCode(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err, "Error al guardar código")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code})
}
